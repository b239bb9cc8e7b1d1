package services

import (
	"context"
	"net/http"
	"strings"

	"github.com/wurt83ow/backoffice-client/pkg/backend"
	"github.com/wurt83ow/backoffice-client/pkg/models"
)

// ImageField is the multipart field carrying a menu item photo.
const ImageField = "image"

// ListMenu returns menu items, optionally narrowed to a category and a name search.
func (s *Service) ListMenu(ctx context.Context, category, search string) ([]models.MenuItem, bool, error) {
	var items []models.MenuItem
	stale, err := s.list(ctx, backend.MenuPath, &items)
	if err != nil {
		return nil, false, err
	}

	search = strings.ToLower(strings.TrimSpace(search))
	out := items[:0]
	for _, item := range items {
		if category != "" && !strings.EqualFold(item.Category, category) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(item.Name), search) {
			continue
		}
		out = append(out, item)
	}
	return out, stale, nil
}

func validateMenuItem(item models.MenuItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return invalid("menu item name is required")
	}
	if item.Price < 0 {
		return invalid("price of %s cannot be negative", item.Name)
	}
	for _, ing := range item.Ingredients {
		if ing.InventoryID == "" || ing.Quantity <= 0 {
			return invalid("ingredient of %s needs an item and a positive quantity", item.Name)
		}
	}
	return nil
}

// AddMenuItem creates a menu item. image is optional; when given it must be
// materialized with offlinequeue.Attach so the write can be queued.
func (s *Service) AddMenuItem(ctx context.Context, item models.MenuItem, image *models.Attachment) (models.Result, error) {
	if err := validateMenuItem(item); err != nil {
		return models.Result{}, err
	}
	return s.write(ctx, ActionAddMenuItem, http.MethodPost, backend.MenuPath, item, imageParts(image),
		backend.MenuPath)
}

func (s *Service) UpdateMenuItem(ctx context.Context, id string, item models.MenuItem, image *models.Attachment) (models.Result, error) {
	if err := validateMenuItem(item); err != nil {
		return models.Result{}, err
	}
	endpoint, err := backend.MenuItemPath(id)
	if err != nil {
		return models.Result{}, err
	}
	item.ID = id
	return s.write(ctx, ActionUpdateMenuItem, http.MethodPut, endpoint, item, imageParts(image),
		backend.MenuPath)
}

func (s *Service) DeleteMenuItem(ctx context.Context, id string) (models.Result, error) {
	if id == "" {
		return models.Result{}, invalid("menu item id is required")
	}
	endpoint, err := backend.MenuItemPath(id)
	if err != nil {
		return models.Result{}, err
	}
	return s.write(ctx, ActionDeleteMenuItem, http.MethodDelete, endpoint, nil, nil,
		backend.MenuPath)
}

func imageParts(image *models.Attachment) []models.Attachment {
	if image == nil {
		return nil
	}
	att := *image
	if att.Field == "" {
		att.Field = ImageField
	}
	return []models.Attachment{att}
}
