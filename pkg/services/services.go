package services

import (
	"context"
	"net/http"
	"strings"

	"github.com/wurt83ow/backoffice-client/pkg/backend"
	"github.com/wurt83ow/backoffice-client/pkg/models"
)

// Action names recorded with queued writes.
const (
	ActionAddInventoryItem    = "add-inventory-item"
	ActionUpdateInventoryItem = "update-inventory-item"
	ActionDeleteInventoryItem = "delete-inventory-item"
	ActionTransferStock       = "transfer-stock"
	ActionAddSurplus          = "add-surplus-record"
	ActionAddSpoilage         = "add-spoilage-record"
	ActionAddMenuItem         = "add-menu-item"
	ActionUpdateMenuItem      = "update-menu-item"
	ActionDeleteMenuItem      = "delete-menu-item"
)

// ListInventory returns inventory items filtered and sorted by q.
func (s *Service) ListInventory(ctx context.Context, q InventoryQuery) ([]models.InventoryItem, bool, error) {
	var items []models.InventoryItem
	stale, err := s.list(ctx, backend.InventoryPath, &items)
	if err != nil {
		return nil, false, err
	}
	return q.Apply(items), stale, nil
}

func validateItem(item models.InventoryItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return invalid("item name is required")
	}
	if item.Quantity < 0 {
		return invalid("quantity of %s cannot be negative", item.Name)
	}
	if item.Threshold < 0 {
		return invalid("threshold of %s cannot be negative", item.Name)
	}
	return nil
}

func (s *Service) AddInventoryItem(ctx context.Context, item models.InventoryItem) (models.Result, error) {
	if err := validateItem(item); err != nil {
		return models.Result{}, err
	}
	return s.write(ctx, ActionAddInventoryItem, http.MethodPost, backend.InventoryPath, item, nil,
		backend.InventoryPath)
}

func (s *Service) UpdateInventoryItem(ctx context.Context, id string, item models.InventoryItem) (models.Result, error) {
	if err := validateItem(item); err != nil {
		return models.Result{}, err
	}
	endpoint, err := backend.InventoryItemPath(id)
	if err != nil {
		return models.Result{}, err
	}
	item.ID = id
	return s.write(ctx, ActionUpdateInventoryItem, http.MethodPut, endpoint, item, nil,
		backend.InventoryPath)
}

func (s *Service) DeleteInventoryItem(ctx context.Context, id string) (models.Result, error) {
	if id == "" {
		return models.Result{}, invalid("item id is required")
	}
	endpoint, err := backend.InventoryItemPath(id)
	if err != nil {
		return models.Result{}, err
	}
	return s.write(ctx, ActionDeleteInventoryItem, http.MethodDelete, endpoint, nil, nil,
		backend.InventoryPath)
}

// TransferStock moves quantity of an item between storage locations.
func (s *Service) TransferStock(ctx context.Context, id string, t models.StockTransfer) (models.Result, error) {
	if id == "" {
		return models.Result{}, invalid("item id is required")
	}
	if t.Quantity <= 0 {
		return models.Result{}, invalid("transfer quantity must be positive")
	}
	if t.FromLocation == "" || t.ToLocation == "" || t.FromLocation == t.ToLocation {
		return models.Result{}, invalid("transfer needs two different locations")
	}
	endpoint, err := backend.InventoryTransferPath(id)
	if err != nil {
		return models.Result{}, err
	}
	return s.write(ctx, ActionTransferStock, http.MethodPost, endpoint, t, nil,
		backend.InventoryPath)
}

func (s *Service) ListSurplus(ctx context.Context) ([]models.SurplusRecord, bool, error) {
	var records []models.SurplusRecord
	stale, err := s.list(ctx, backend.SurplusPath, &records)
	return records, stale, err
}

func (s *Service) AddSurplus(ctx context.Context, r models.SurplusRecord) (models.Result, error) {
	if r.InventoryID == "" || r.Quantity <= 0 {
		return models.Result{}, invalid("surplus needs an item and a positive quantity")
	}
	return s.write(ctx, ActionAddSurplus, http.MethodPost, backend.SurplusPath, r, nil,
		backend.SurplusPath, backend.InventoryPath)
}

func (s *Service) ListSpoilage(ctx context.Context) ([]models.SpoilageRecord, bool, error) {
	var records []models.SpoilageRecord
	stale, err := s.list(ctx, backend.SpoilagePath, &records)
	return records, stale, err
}

func (s *Service) AddSpoilage(ctx context.Context, r models.SpoilageRecord) (models.Result, error) {
	if r.InventoryID == "" || r.Quantity <= 0 {
		return models.Result{}, invalid("spoilage needs an item and a positive quantity")
	}
	if strings.TrimSpace(r.Reason) == "" {
		return models.Result{}, invalid("spoilage reason is required")
	}
	return s.write(ctx, ActionAddSpoilage, http.MethodPost, backend.SpoilagePath, r, nil,
		backend.SpoilagePath, backend.InventoryPath)
}
