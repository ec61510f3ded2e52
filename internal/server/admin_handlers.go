package server

import (
	"strconv"

	"kindkart/internal/models"
	"kindkart/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// GetAdminDashboard handles GET /api/admin/dashboard
// @Summary Marketplace counts
// @Tags admin
// @Produce json
// @Success 200 {object} service.Dashboard
// @Failure 403 {object} models.ErrorResponse
// @Router /admin/dashboard [get]
func (s *Server) GetAdminDashboard(c *fiber.Ctx) error {
	dashboard, err := s.userService.Dashboard(c.UserContext(), actorOf(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(dashboard)
}

// ListAllRequests handles GET /api/admin/requests
// @Summary All requests
// @Tags admin
// @Produce json
// @Param status query string false "Status filter"
// @Success 200 {object} listResponse
// @Router /admin/requests [get]
func (s *Server) ListAllRequests(c *fiber.Ctx) error {
	return s.listRequests(c, s.requestService.List)
}

// ListUsers handles GET /api/admin/users
// @Summary All users
// @Tags admin
// @Produce json
// @Param role query string false "Role filter"
// @Param status query string false "blocked or active"
// @Param search query string false "Matches name or email"
// @Success 200 {object} listResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /admin/users [get]
func (s *Server) ListUsers(c *fiber.Ctx) error {
	filter := repository.UserFilter{
		Role:   models.Role(c.Query("role")),
		Search: c.Query("search"),
		Page:   parsePagination(c, defaultPaginationLimit),
	}
	switch c.Query("status") {
	case "":
	case "blocked":
		blocked := true
		filter.Blocked = &blocked
	case "active":
		blocked := false
		filter.Blocked = &blocked
	default:
		return models.RespondWithAppError(c, models.NewValidationError("status must be blocked or active"))
	}

	users, total, err := s.userService.ListUsers(c.UserContext(), actorOf(c), filter)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(newListResponse(users, total, filter.Page))
}

// ListAllItems handles GET /api/admin/items
// @Summary All items, hidden ones included
// @Tags admin
// @Produce json
// @Param status query string false "Status filter"
// @Param category query string false "Category filter"
// @Param visible query bool false "Visibility filter"
// @Param search query string false "Matches title or description"
// @Success 200 {object} listResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /admin/items [get]
func (s *Server) ListAllItems(c *fiber.Ctx) error {
	filter := repository.ItemFilter{
		Status:   models.ItemStatus(c.Query("status")),
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Page:     parsePagination(c, defaultPaginationLimit),
	}
	if raw := c.Query("visible"); raw != "" {
		visible, err := strconv.ParseBool(raw)
		if err != nil {
			return models.RespondWithAppError(c, models.NewValidationError("visible must be true or false"))
		}
		filter.Visible = &visible
	}

	items, total, err := s.itemService.List(c.UserContext(), actorOf(c), filter)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(newListResponse(items, total, filter.Page))
}

// GetAnalytics handles GET /api/admin/analytics
// @Summary Marketplace growth
// @Tags admin
// @Produce json
// @Param period query string false "day, week, month or all"
// @Success 200 {object} service.Analytics
// @Failure 400 {object} models.ErrorResponse
// @Router /admin/analytics [get]
func (s *Server) GetAnalytics(c *fiber.Ctx) error {
	analytics, err := s.userService.Analytics(c.UserContext(), actorOf(c), c.Query("period"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(analytics)
}

// BlockUser handles POST /api/admin/users/:id/block
func (s *Server) BlockUser(c *fiber.Ctx) error {
	return s.setBlocked(c, true)
}

// UnblockUser handles POST /api/admin/users/:id/unblock
func (s *Server) UnblockUser(c *fiber.Ctx) error {
	return s.setBlocked(c, false)
}

func (s *Server) setBlocked(c *fiber.Ctx, blocked bool) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.userService.SetBlocked(c.UserContext(), actorOf(c), id, blocked)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(user)
}

// VerifyUser handles POST /api/admin/users/:id/verify
func (s *Server) VerifyUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.userService.Verify(c.UserContext(), actorOf(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(user)
}

// ReconcileUserStats handles POST /api/admin/users/:id/reconcile-stats
// @Summary Recompute a user's counters
// @Description Rebuilds donated, received and impact counts from completed requests.
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.UserStats
// @Router /admin/users/{id}/reconcile-stats [post]
func (s *Server) ReconcileUserStats(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	stats, err := s.userService.ReconcileStats(c.UserContext(), actorOf(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(stats)
}

// SetItemVisibility handles PUT /api/admin/items/:id/visibility
func (s *Server) SetItemVisibility(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var body struct {
		Visible *bool `json:"visible"`
	}
	if err := c.BodyParser(&body); err != nil || body.Visible == nil {
		return models.RespondWithAppError(c, models.NewValidationError("visible is required"))
	}
	item, err := s.itemService.SetVisibility(c.UserContext(), actorOf(c), id, *body.Visible)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(item)
}
