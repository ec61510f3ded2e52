package server

import (
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"kindkart/internal/models"
	"kindkart/internal/observability"
	"kindkart/internal/repository"
	"kindkart/internal/service"

	"github.com/gofiber/fiber/v2"
)

const principalKey = "principal"

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

const (
	defaultPaginationLimit = 20
	maxPaginationLimit     = 100
)

// listResponse is the envelope for paginated collections.
type listResponse struct {
	Data   interface{} `json:"data"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

func newListResponse(data interface{}, total int64, page repository.Page) listResponse {
	return listResponse{Data: data, Total: total, Limit: page.Limit, Offset: page.Offset}
}

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) repository.Page {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return repository.Page{Limit: limit, Offset: offset}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithAppError(c, models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "userId" -> "user ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	return append(words, s[start:])
}

// parseBody decodes an optional JSON body into dest. An empty body leaves
// dest untouched.
func parseBody(c *fiber.Ctx, dest interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(dest); err != nil {
		_ = models.RespondWithAppError(c, models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}

// parseStatusFilter reads ?status= and rejects unknown values.
func parseStatusFilter(c *fiber.Ctx) (models.RequestStatus, error) {
	raw := c.Query("status")
	if raw == "" {
		return "", nil
	}
	status := models.RequestStatus(raw)
	if !status.Valid() {
		_ = models.RespondWithAppError(c, models.NewValidationError("Invalid status filter"))
		return "", errResponseWritten
	}
	return status, nil
}

// principal returns the authenticated user resolved by AuthRequired.
func principal(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(principalKey).(*models.User)
	return user
}

func actorOf(c *fiber.Ctx) service.Actor {
	return service.ActorFor(principal(c))
}

// viewer resolves an optional bearer token on public routes. Missing or
// invalid tokens, unknown users and blocked users all browse anonymously.
func (s *Server) viewer(c *fiber.Ctx) *service.Actor {
	header := c.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil
	}
	userID, err := s.auth.Subject(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
	if err != nil {
		return nil
	}
	user, err := s.userService.Principal(c.UserContext(), userID)
	if err != nil {
		return nil
	}
	actor := service.ActorFor(user)
	return &actor
}

// fail writes err with the status mapped from its code. Internal errors are
// logged here since their cause never reaches the client.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	if models.ErrorCode(err) == models.CodeInternal {
		observability.GlobalLogger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	return models.RespondWithAppError(c, err)
}
