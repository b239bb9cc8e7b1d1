package services

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/wurt83ow/backoffice-client/pkg/models"
)

var inventoryHeader = []string{"ID", "Name", "Category", "Quantity", "Unit", "Threshold", "Status", "Location", "Updated"}

// InventoryRows builds the spreadsheet rows of an inventory export, header first.
func InventoryRows(items []models.InventoryItem) [][]string {
	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, inventoryHeader)
	for _, item := range items {
		updated := ""
		if item.UpdatedAt != nil {
			updated = item.UpdatedAt.Format(time.RFC3339)
		}
		rows = append(rows, []string{
			item.ID,
			item.Name,
			item.Category,
			formatQty(item.Quantity),
			item.Unit,
			formatQty(item.Threshold),
			item.Status(),
			item.Location,
			updated,
		})
	}
	return rows
}

// SalesRows builds the spreadsheet rows of a sales report, with a total line.
func SalesRows(r models.SalesReport) [][]string {
	rows := [][]string{{"Menu item", "Quantity", "Revenue"}}
	for _, l := range r.Lines {
		rows = append(rows, []string{l.Name, strconv.Itoa(l.Quantity), strconv.FormatFloat(l.Revenue, 'f', 2, 64)})
	}
	rows = append(rows, []string{"Total", "", strconv.FormatFloat(r.Total, 'f', 2, 64)})
	return rows
}

// WriteCSV writes rows as CSV.
func WriteCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
