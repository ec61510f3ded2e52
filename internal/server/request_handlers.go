package server

import (
	"context"
	"log/slog"

	"kindkart/internal/featureflags"
	"kindkart/internal/models"
	"kindkart/internal/observability"
	"kindkart/internal/repository"
	"kindkart/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createRequestBody struct {
	ItemID        uint                 `json:"item_id"`
	Message       string               `json:"message"`
	PickupDetails models.PickupDetails `json:"pickup_details"`
}

type reasonBody struct {
	Reason string `json:"reason"`
}

type completeRequestBody struct {
	Rating  *int   `json:"rating"`
	Comment string `json:"comment"`
}

type messageBody struct {
	Body string `json:"body"`
}

// CreateRequest handles POST /api/requests
// @Summary Request an item
// @Description Opens a pending request on an available item and reserves it.
// @Tags requests
// @Accept json
// @Produce json
// @Param request body createRequestBody true "Request"
// @Success 201 {object} models.Request
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /requests [post]
func (s *Server) CreateRequest(c *fiber.Ctx) error {
	var body createRequestBody
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithAppError(c, models.NewValidationError("Invalid request body"))
	}

	req, err := s.requestService.Create(c.UserContext(), actorOf(c), service.CreateRequestInput{
		ItemID:  body.ItemID,
		Message: body.Message,
		Pickup:  body.PickupDetails,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// GetRequest handles GET /api/requests/:id
// @Summary Get a request
// @Description Returns a request with its status history and messages.
// @Tags requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} models.Request
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /requests/{id} [get]
func (s *Server) GetRequest(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	ctx := c.UserContext()
	actor := actorOf(c)

	req, err := s.requestService.Get(ctx, actor, id)
	if err != nil {
		return s.fail(c, err)
	}

	if req.IsParticipant(actor.ID) && s.featureFlags.Enabled(featureflags.ReadOnView, actor.ID) {
		if _, err := s.conversationService.MarkRead(ctx, actor, id); err != nil {
			observability.GlobalLogger.WarnContext(ctx, "mark read on view failed",
				slog.Uint64("request_id", uint64(id)),
				slog.String("error", err.Error()),
			)
		} else {
			req.UnreadCount = 0
			for i := range req.Messages {
				if req.Messages[i].SenderID != actor.ID {
					req.Messages[i].IsRead = true
				}
			}
		}
	}
	return c.JSON(req)
}

// ListSentRequests handles GET /api/requests/sent
// @Summary Requests I sent
// @Tags requests
// @Produce json
// @Param status query string false "Status filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} listResponse
// @Router /requests/sent [get]
func (s *Server) ListSentRequests(c *fiber.Ctx) error {
	return s.listRequests(c, s.requestService.ListSent)
}

// ListReceivedRequests handles GET /api/requests/received
// @Summary Requests for my items
// @Tags requests
// @Produce json
// @Param status query string false "Status filter"
// @Success 200 {object} listResponse
// @Router /requests/received [get]
func (s *Server) ListReceivedRequests(c *fiber.Ctx) error {
	return s.listRequests(c, s.requestService.ListReceived)
}

type listRequestsFunc func(context.Context, service.Actor, repository.RequestFilter) ([]models.Request, int64, error)

func (s *Server) listRequests(c *fiber.Ctx, list listRequestsFunc) error {
	status, err := parseStatusFilter(c)
	if err != nil {
		return nil
	}
	page := parsePagination(c, defaultPaginationLimit)

	reqs, total, err := list(c.UserContext(), actorOf(c), repository.RequestFilter{Status: status, Page: page})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(newListResponse(reqs, total, page))
}

// AcceptRequest handles POST /api/requests/:id/accept
// @Summary Accept a request
// @Tags requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} models.Request
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /requests/{id}/accept [post]
func (s *Server) AcceptRequest(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	req, err := s.requestService.Accept(c.UserContext(), actorOf(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(req)
}

// RejectRequest handles POST /api/requests/:id/reject
func (s *Server) RejectRequest(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var body reasonBody
	if err := parseBody(c, &body); err != nil {
		return nil
	}
	req, err := s.requestService.Reject(c.UserContext(), actorOf(c), id, body.Reason)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(req)
}

// CancelRequest handles POST /api/requests/:id/cancel
func (s *Server) CancelRequest(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var body reasonBody
	if err := parseBody(c, &body); err != nil {
		return nil
	}
	req, err := s.requestService.Cancel(c.UserContext(), actorOf(c), id, body.Reason)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(req)
}

// CompleteRequest handles POST /api/requests/:id/complete
// @Summary Complete a request
// @Description Records the handover of an accepted request. Succeeds once.
// @Tags requests
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param request body completeRequestBody false "Rating and comment"
// @Success 200 {object} models.Request
// @Router /requests/{id}/complete [post]
func (s *Server) CompleteRequest(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var body completeRequestBody
	if err := parseBody(c, &body); err != nil {
		return nil
	}
	req, err := s.requestService.Complete(c.UserContext(), actorOf(c), id, service.CompleteRequestInput{
		Rating:  body.Rating,
		Comment: body.Comment,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(req)
}

// PostMessage handles POST /api/requests/:id/messages
// @Summary Message the other participant
// @Tags requests
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param request body messageBody true "Message"
// @Success 201 {object} models.RequestMessage
// @Router /requests/{id}/messages [post]
func (s *Server) PostMessage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var body messageBody
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithAppError(c, models.NewValidationError("Invalid request body"))
	}
	msg, err := s.conversationService.Post(c.UserContext(), actorOf(c), id, body.Body)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// MarkRequestRead handles POST /api/requests/:id/read
func (s *Server) MarkRequestRead(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	n, err := s.conversationService.MarkRead(c.UserContext(), actorOf(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"marked": n})
}
