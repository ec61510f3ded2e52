package server

import (
	"time"

	"kindkart/internal/models"
	"kindkart/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createItemBody struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Category         string          `json:"category"`
	Condition        string          `json:"condition"`
	Location         models.Location `json:"location"`
	PickupPreference string          `json:"pickup_preference"`
	ExpiresAt        *time.Time      `json:"expires_at"`
}

type updateItemBody struct {
	Title            *string          `json:"title"`
	Description      *string          `json:"description"`
	Category         *string          `json:"category"`
	Condition        *string          `json:"condition"`
	Location         *models.Location `json:"location"`
	PickupPreference *string          `json:"pickup_preference"`
	ExpiresAt        *time.Time       `json:"expires_at"`
}

// ListItems handles GET /api/items
// @Summary Browse available items
// @Tags items
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} listResponse
// @Router /items [get]
func (s *Server) ListItems(c *fiber.Ctx) error {
	page := parsePagination(c, defaultPaginationLimit)
	items, total, err := s.itemService.ListAvailable(c.UserContext(), page)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(newListResponse(items, total, page))
}

// GetItem handles GET /api/items/:id
// @Summary Get an item
// @Description Counts a view unless the owner is looking.
// @Tags items
// @Produce json
// @Param id path int true "Item ID"
// @Success 200 {object} models.Item
// @Failure 404 {object} models.ErrorResponse
// @Router /items/{id} [get]
func (s *Server) GetItem(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	item, err := s.itemService.Get(c.UserContext(), s.viewer(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(item)
}

// ListUserItems handles GET /api/users/:id/items
func (s *Server) ListUserItems(c *fiber.Ctx) error {
	donorID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, defaultPaginationLimit)
	items, total, err := s.itemService.ListByDonor(c.UserContext(), s.viewer(c), donorID, page)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(newListResponse(items, total, page))
}

// CreateItem handles POST /api/items
// @Summary List an item for donation
// @Tags items
// @Accept json
// @Produce json
// @Param request body createItemBody true "Item"
// @Success 201 {object} models.Item
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /items [post]
func (s *Server) CreateItem(c *fiber.Ctx) error {
	var body createItemBody
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithAppError(c, models.NewValidationError("Invalid request body"))
	}

	item, err := s.itemService.Create(c.UserContext(), actorOf(c), service.CreateItemInput{
		Title:            body.Title,
		Description:      body.Description,
		Category:         body.Category,
		Condition:        body.Condition,
		Location:         body.Location,
		PickupPreference: body.PickupPreference,
		ExpiresAt:        body.ExpiresAt,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// UpdateItem handles PUT /api/items/:id
// @Summary Edit an item
// @Description Refused while a request holds the item.
// @Tags items
// @Accept json
// @Produce json
// @Param id path int true "Item ID"
// @Param request body updateItemBody true "Fields to change"
// @Success 200 {object} models.Item
// @Failure 409 {object} models.ErrorResponse
// @Router /items/{id} [put]
func (s *Server) UpdateItem(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var body updateItemBody
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithAppError(c, models.NewValidationError("Invalid request body"))
	}

	item, err := s.itemService.Update(c.UserContext(), actorOf(c), id, service.UpdateItemInput{
		Title:            body.Title,
		Description:      body.Description,
		Category:         body.Category,
		Condition:        body.Condition,
		Location:         body.Location,
		PickupPreference: body.PickupPreference,
		ExpiresAt:        body.ExpiresAt,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(item)
}

// DeleteItem handles DELETE /api/items/:id
func (s *Server) DeleteItem(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.itemService.Delete(c.UserContext(), actorOf(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Item deleted"})
}

// WithdrawItem handles POST /api/items/:id/withdraw
func (s *Server) WithdrawItem(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	item, err := s.itemService.Withdraw(c.UserContext(), actorOf(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(item)
}

// RelistItem handles POST /api/items/:id/relist
func (s *Server) RelistItem(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	item, err := s.itemService.Relist(c.UserContext(), actorOf(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(item)
}
