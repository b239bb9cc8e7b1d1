package services

import (
	"sort"
	"strings"

	"github.com/wurt83ow/backoffice-client/pkg/models"
)

// Sort keys accepted by InventoryQuery.
const (
	SortByName     = "name"
	SortByQuantity = "quantity"
	SortByCategory = "category"
	SortByStatus   = "status"
)

// stockRank orders statuses from most to least urgent.
var stockRank = map[string]int{
	models.StockOutOfStock: 0,
	models.StockCritical:   1,
	models.StockLow:        2,
	models.StockNormal:     3,
}

// InventoryQuery filters and sorts an already loaded inventory list.
type InventoryQuery struct {
	Search   string // case-insensitive substring of name or category
	Category string
	Status   string // one of the models.Stock* labels
	SortBy   string
	Desc     bool
}

// Apply returns the matching items in the requested order. items is not modified.
func (q InventoryQuery) Apply(items []models.InventoryItem) []models.InventoryItem {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]models.InventoryItem, 0, len(items))
	for _, item := range items {
		if q.Category != "" && !strings.EqualFold(item.Category, q.Category) {
			continue
		}
		if q.Status != "" && !strings.EqualFold(item.Status(), q.Status) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(item.Name), search) &&
			!strings.Contains(strings.ToLower(item.Category), search) {
			continue
		}
		out = append(out, item)
	}

	less := q.less()
	if less == nil {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.Desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func (q InventoryQuery) less() func(a, b models.InventoryItem) bool {
	switch q.SortBy {
	case SortByName:
		return func(a, b models.InventoryItem) bool {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
	case SortByQuantity:
		return func(a, b models.InventoryItem) bool { return a.Quantity < b.Quantity }
	case SortByCategory:
		return func(a, b models.InventoryItem) bool {
			return strings.ToLower(a.Category) < strings.ToLower(b.Category)
		}
	case SortByStatus:
		return func(a, b models.InventoryItem) bool {
			return stockRank[a.Status()] < stockRank[b.Status()]
		}
	default:
		return nil
	}
}

// LowStock returns items that are not Normal, most urgent first.
func LowStock(items []models.InventoryItem) []models.InventoryItem {
	out := make([]models.InventoryItem, 0)
	for _, item := range items {
		if item.Status() != models.StockNormal {
			out = append(out, item)
		}
	}
	return InventoryQuery{SortBy: SortByStatus}.Apply(out)
}
