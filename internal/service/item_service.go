package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"kindkart/internal/cache"
	"kindkart/internal/models"
	"kindkart/internal/repository"
)

const (
	maxItemTitle       = 100
	maxItemDescription = 1000
)

// ItemService provides the item catalogue.
type ItemService struct {
	items repository.ItemRepository
	cache *cache.Aside
	now   Clock
}

// NewItemService returns a new ItemService.
func NewItemService(items repository.ItemRepository, aside *cache.Aside) *ItemService {
	return &ItemService{items: items, cache: aside, now: time.Now}
}

// CreateItemInput is the input for listing an item.
type CreateItemInput struct {
	Title            string
	Description      string
	Category         string
	Condition        string
	Location         models.Location
	PickupPreference string
	ExpiresAt        *time.Time
}

// UpdateItemInput carries the fields to change; nil fields are left alone.
type UpdateItemInput struct {
	Title            *string
	Description      *string
	Category         *string
	Condition        *string
	Location         *models.Location
	PickupPreference *string
	ExpiresAt        *time.Time
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return models.NewValidationError("title is required")
	}
	if utf8.RuneCountInString(title) > maxItemTitle {
		return models.NewValidationError(fmt.Sprintf("title must be at most %d characters", maxItemTitle))
	}
	return nil
}

func validateDescription(desc string) error {
	if strings.TrimSpace(desc) == "" {
		return models.NewValidationError("description is required")
	}
	if utf8.RuneCountInString(desc) > maxItemDescription {
		return models.NewValidationError(fmt.Sprintf("description must be at most %d characters", maxItemDescription))
	}
	return nil
}

func validateEnum(field, value string, allowed []string) error {
	if !slices.Contains(allowed, value) {
		return models.NewValidationError(fmt.Sprintf("%s must be one of %s", field, strings.Join(allowed, ", ")))
	}
	return nil
}

var pickupPreferences = []string{models.PickupOnly, models.DropoffOnly, models.PickupOrDrop}

func (in *CreateItemInput) validate(now time.Time) error {
	if in.PickupPreference == "" {
		in.PickupPreference = models.PickupOrDrop
	}
	if err := validateTitle(in.Title); err != nil {
		return err
	}
	if err := validateDescription(in.Description); err != nil {
		return err
	}
	if err := validateEnum("category", in.Category, models.ItemCategories); err != nil {
		return err
	}
	if err := validateEnum("condition", in.Condition, models.ItemConditions); err != nil {
		return err
	}
	if err := validateEnum("pickup_preference", in.PickupPreference, pickupPreferences); err != nil {
		return err
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return models.NewValidationError("expires_at must be in the future")
	}
	return nil
}

func (in UpdateItemInput) updates(now time.Time) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if in.Title != nil {
		if err := validateTitle(*in.Title); err != nil {
			return nil, err
		}
		out["title"] = *in.Title
	}
	if in.Description != nil {
		if err := validateDescription(*in.Description); err != nil {
			return nil, err
		}
		out["description"] = *in.Description
	}
	if in.Category != nil {
		if err := validateEnum("category", *in.Category, models.ItemCategories); err != nil {
			return nil, err
		}
		out["category"] = *in.Category
	}
	if in.Condition != nil {
		if err := validateEnum("condition", *in.Condition, models.ItemConditions); err != nil {
			return nil, err
		}
		out["condition"] = *in.Condition
	}
	if in.PickupPreference != nil {
		if err := validateEnum("pickup_preference", *in.PickupPreference, pickupPreferences); err != nil {
			return nil, err
		}
		out["pickup_preference"] = *in.PickupPreference
	}
	if in.Location != nil {
		out["location_address"] = in.Location.Address
		out["location_city"] = in.Location.City
		out["location_state"] = in.Location.State
		out["location_zip_code"] = in.Location.ZipCode
	}
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			return nil, models.NewValidationError("expires_at must be in the future")
		}
		out["expires_at"] = *in.ExpiresAt
	}
	if len(out) == 0 {
		return nil, models.NewValidationError("no fields to update")
	}
	return out, nil
}

// Create lists a new available item owned by the actor.
func (s *ItemService) Create(ctx context.Context, actor Actor, in CreateItemInput) (*models.Item, error) {
	if !actor.Role.CanList() {
		return nil, models.NewForbiddenError("Your role cannot list items")
	}
	if err := in.validate(s.now()); err != nil {
		return nil, err
	}

	item := &models.Item{
		DonorID:          actor.ID,
		Title:            strings.TrimSpace(in.Title),
		Description:      strings.TrimSpace(in.Description),
		Category:         in.Category,
		Condition:        in.Condition,
		Location:         in.Location,
		PickupPreference: in.PickupPreference,
		Status:           models.ItemStatusAvailable,
		IsVisible:        true,
		ExpiresAt:        in.ExpiresAt,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, cache.ProfileKey(actor.ID))
	return s.items.GetByID(ctx, item.ID)
}

func canManage(viewer *Actor, item *models.Item) bool {
	return viewer != nil && (viewer.IsAdmin() || viewer.ID == item.DonorID)
}

// Get returns an item and counts the view. Hidden items are only visible to
// their donor and admins. viewer is nil for anonymous callers.
func (s *ItemService) Get(ctx context.Context, viewer *Actor, id uint) (*models.Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.IsVisible && !canManage(viewer, item) {
		return nil, models.NewNotFoundError("Item", id)
	}
	if viewer == nil || viewer.ID != item.DonorID {
		if err := s.items.IncrementViewCount(ctx, id); err != nil {
			return nil, err
		}
		item.ViewCount++
	}
	return item, nil
}

func (s *ItemService) managed(ctx context.Context, actor Actor, id uint) (*models.Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(&actor, item) {
		return nil, models.NewForbiddenError("Only the donor can change this item")
	}
	return item, nil
}

// Update edits an item that is not under active negotiation.
func (s *ItemService) Update(ctx context.Context, actor Actor, id uint, in UpdateItemInput) (*models.Item, error) {
	item, err := s.managed(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := GuardMutable(item); err != nil {
		return nil, err
	}
	updates, err := in.updates(s.now())
	if err != nil {
		return nil, err
	}
	if err := s.items.UpdateUnlessNegotiating(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.items.GetByID(ctx, id)
}

// Delete removes an item that is not under active negotiation.
func (s *ItemService) Delete(ctx context.Context, actor Actor, id uint) error {
	item, err := s.managed(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := GuardMutable(item); err != nil {
		return err
	}
	if err := s.items.DeleteUnlessNegotiating(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.ProfileKey(item.DonorID))
	return nil
}

// Withdraw takes an available item off the market.
func (s *ItemService) Withdraw(ctx context.Context, actor Actor, id uint) (*models.Item, error) {
	return s.relabel(ctx, actor, id, models.ItemStatusAvailable, models.ItemStatusCancelled)
}

// Relist puts a withdrawn item back on the market.
func (s *ItemService) Relist(ctx context.Context, actor Actor, id uint) (*models.Item, error) {
	return s.relabel(ctx, actor, id, models.ItemStatusCancelled, models.ItemStatusAvailable)
}

func (s *ItemService) relabel(ctx context.Context, actor Actor, id uint, from, to models.ItemStatus) (*models.Item, error) {
	item, err := s.managed(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := GuardMutable(item); err != nil {
		return nil, err
	}
	if item.Status != from {
		return nil, models.NewInvalidTransitionError(fmt.Sprintf("Item is %s, not %s", item.Status, from))
	}
	if err := s.items.TransitionListing(ctx, id, from, to); err != nil {
		return nil, err
	}
	return s.items.GetByID(ctx, id)
}

// SetVisibility hides or shows an item. Admin only.
func (s *ItemService) SetVisibility(ctx context.Context, actor Actor, id uint, visible bool) (*models.Item, error) {
	if !actor.IsAdmin() {
		return nil, models.NewForbiddenError("Admin access required")
	}
	if err := s.items.SetVisibility(ctx, id, visible); err != nil {
		return nil, err
	}
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, cache.ProfileKey(item.DonorID))
	return item, nil
}

// ListAvailable lists items that can be requested.
func (s *ItemService) ListAvailable(ctx context.Context, page repository.Page) ([]models.Item, int64, error) {
	return s.items.ListAvailable(ctx, page)
}

// ListByDonor lists a donor's items. Hidden items are included for the donor and admins.
func (s *ItemService) ListByDonor(ctx context.Context, viewer *Actor, donorID uint, page repository.Page) ([]models.Item, int64, error) {
	includeHidden := viewer != nil && (viewer.IsAdmin() || viewer.ID == donorID)
	return s.items.ListByDonor(ctx, donorID, includeHidden, page)
}

// List lists items across all donors, hidden ones included. Admin only.
func (s *ItemService) List(ctx context.Context, actor Actor, filter repository.ItemFilter) ([]models.Item, int64, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, 0, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, models.NewValidationError("Invalid status filter")
	}
	if filter.Category != "" {
		if err := validateEnum("category", filter.Category, models.ItemCategories); err != nil {
			return nil, 0, err
		}
	}
	return s.items.List(ctx, filter)
}
