package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetLeaderboard handles GET /api/users/leaderboard
// @Summary Top donors
// @Tags users
// @Produce json
// @Param limit query int false "Number of donors (max 100)"
// @Success 200 {array} models.User
// @Router /users/leaderboard [get]
func (s *Server) GetLeaderboard(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}
	users, err := s.userService.Leaderboard(c.UserContext(), limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(users)
}

// GetMyProfile handles GET /api/users/profile
// @Summary Own profile
// @Tags users
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /users/profile [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.userService.Me(c.UserContext(), actorOf(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(user)
}

// GetUserProfile handles GET /api/users/:id
// @Summary Public profile
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.PublicProfile
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id} [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	profile, err := s.userService.Profile(c.UserContext(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(profile)
}

// GetUserStats handles GET /api/users/:id/stats
func (s *Server) GetUserStats(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	activity, err := s.userService.Activity(c.UserContext(), actorOf(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(activity)
}
