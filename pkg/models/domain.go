package models

import "time"

type InventoryItem struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Category  string     `json:"category"`
	Unit      string     `json:"unit"`
	Quantity  float64    `json:"quantity"`
	Threshold float64    `json:"threshold"`
	Location  string     `json:"location,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type SurplusRecord struct {
	ID          string     `json:"id,omitempty"`
	InventoryID string     `json:"inventory_id"`
	Quantity    float64    `json:"quantity"`
	Reason      string     `json:"reason"`
	RecordedAt  *time.Time `json:"recorded_at,omitempty"`
}

type SpoilageRecord struct {
	ID          string     `json:"id,omitempty"`
	InventoryID string     `json:"inventory_id"`
	Quantity    float64    `json:"quantity"`
	Reason      string     `json:"reason"`
	RecordedAt  *time.Time `json:"recorded_at,omitempty"`
}

type StockTransfer struct {
	Quantity     float64 `json:"quantity"`
	FromLocation string  `json:"from_location"`
	ToLocation   string  `json:"to_location"`
}

type MenuIngredient struct {
	InventoryID string  `json:"inventory_id"`
	Quantity    float64 `json:"quantity"`
}

type MenuItem struct {
	ID          string           `json:"id,omitempty"`
	Name        string           `json:"name"`
	Category    string           `json:"category"`
	Price       float64          `json:"price"`
	Description string           `json:"description,omitempty"`
	Ingredients []MenuIngredient `json:"ingredients,omitempty"`
	ImageURL    string           `json:"image_url,omitempty"`
}

type SalesLine struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Revenue    float64 `json:"revenue"`
}

type SalesReport struct {
	From  time.Time   `json:"from"`
	To    time.Time   `json:"to"`
	Lines []SalesLine `json:"lines"`
	Total float64     `json:"total"`
}

// Stock status labels.
const (
	StockOutOfStock = "Out Of Stock"
	StockCritical   = "Critical"
	StockLow        = "Low"
	StockNormal     = "Normal"
)

// ClassifyStock labels a quantity against its reorder threshold.
func ClassifyStock(quantity, threshold float64) string {
	switch {
	case quantity <= 0:
		return StockOutOfStock
	case threshold <= 0:
		return StockNormal
	case quantity <= threshold/2:
		return StockCritical
	case quantity <= threshold:
		return StockLow
	default:
		return StockNormal
	}
}

// Status returns the stock label of the item.
func (i InventoryItem) Status() string {
	return ClassifyStock(i.Quantity, i.Threshold)
}
