package client

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wurt83ow/backoffice-client/pkg/models"
	"github.com/wurt83ow/backoffice-client/pkg/services"
)

func newInventoryCommand(get func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inventory",
		Aliases: []string{"inv"},
		Short:   "Stock levels and transfers",
	}
	cmd.AddCommand(
		newInventoryListCommand(get),
		newInventoryLowCommand(get),
		newInventoryAddCommand(get),
		newInventoryUpdateCommand(get),
		newInventoryDeleteCommand(get),
		newInventoryTransferCommand(get),
	)
	return cmd
}

func newInventoryListCommand(get func() *App) *cobra.Command {
	var (
		q     services.InventoryQuery
		asCSV bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inventory items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, stale, err := get().Service.ListInventory(cmd.Context(), q)
			if err != nil {
				return err
			}
			return showInventory(cmd.OutOrStdout(), items, stale, asCSV)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&q.Search, "search", "s", "", "match name or category")
	f.StringVar(&q.Category, "category", "", "only this category")
	f.StringVar(&q.Status, "status", "", "only this stock status (Out Of Stock, Critical, Low, Normal)")
	f.StringVar(&q.SortBy, "sort", services.SortByName, "sort by name, quantity, category or status")
	f.BoolVar(&q.Desc, "desc", false, "reverse the sort order")
	f.BoolVar(&asCSV, "csv", false, "write CSV instead of a table")
	return cmd
}

func newInventoryLowCommand(get func() *App) *cobra.Command {
	var asCSV bool
	cmd := &cobra.Command{
		Use:   "low",
		Short: "List items at or below their reorder threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, stale, err := get().Service.ListInventory(cmd.Context(), services.InventoryQuery{SortBy: services.SortByStatus})
			if err != nil {
				return err
			}
			return showInventory(cmd.OutOrStdout(), services.LowStock(items), stale, asCSV)
		},
	}
	cmd.Flags().BoolVar(&asCSV, "csv", false, "write CSV instead of a table")
	return cmd
}

func showInventory(w io.Writer, items []models.InventoryItem, stale, asCSV bool) error {
	if asCSV {
		return services.WriteCSV(w, services.InventoryRows(items))
	}
	printStale(w, stale)
	return printInventory(w, items)
}

func bindItemFlags(cmd *cobra.Command, item *models.InventoryItem) {
	f := cmd.Flags()
	f.StringVar(&item.Name, "name", "", "item name")
	f.StringVar(&item.Category, "category", "", "item category")
	f.StringVar(&item.Unit, "unit", "", "unit of measure (kg, l, pcs)")
	f.Float64Var(&item.Quantity, "quantity", 0, "quantity on hand")
	f.Float64Var(&item.Threshold, "threshold", 0, "reorder threshold")
	f.StringVar(&item.Location, "location", "", "storage location")
}

func newInventoryAddCommand(get func() *App) *cobra.Command {
	var item models.InventoryItem
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an inventory item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := get().Service.AddInventoryItem(cmd.Context(), item)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	bindItemFlags(cmd, &item)
	return cmd
}

func newInventoryUpdateCommand(get func() *App) *cobra.Command {
	var item models.InventoryItem
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace an inventory item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := get().Service.UpdateInventoryItem(cmd.Context(), args[0], item)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	bindItemFlags(cmd, &item)
	return cmd
}

func newInventoryDeleteCommand(get func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an inventory item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := get().Service.DeleteInventoryItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func newInventoryTransferCommand(get func() *App) *cobra.Command {
	var t models.StockTransfer
	cmd := &cobra.Command{
		Use:   "transfer <id>",
		Short: "Move stock between locations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := get().Service.TransferStock(cmd.Context(), args[0], t)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&t.Quantity, "quantity", 0, "quantity to move")
	f.StringVar(&t.FromLocation, "from", "", "source location")
	f.StringVar(&t.ToLocation, "to", "", "destination location")
	return cmd
}

func newSurplusCommand(get func() *App) *cobra.Command {
	cmd := &cobra.Command{Use: "surplus", Short: "Surplus stock records"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List surplus records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, stale, err := get().Service.ListSurplus(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][4]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, [4]string{r.ID, r.InventoryID, formatQty(r.Quantity), r.Reason})
			}
			printStale(cmd.OutOrStdout(), stale)
			return printLedger(cmd.OutOrStdout(), rows)
		},
	}

	var rec models.SurplusRecord
	add := &cobra.Command{
		Use:   "add",
		Short: "Record surplus stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := get().Service.AddSurplus(cmd.Context(), rec)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	bindRecordFlags(add, &rec.InventoryID, &rec.Quantity, &rec.Reason)

	cmd.AddCommand(list, add)
	return cmd
}

func newSpoilageCommand(get func() *App) *cobra.Command {
	cmd := &cobra.Command{Use: "spoilage", Short: "Spoiled stock records"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List spoilage records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, stale, err := get().Service.ListSpoilage(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][4]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, [4]string{r.ID, r.InventoryID, formatQty(r.Quantity), r.Reason})
			}
			printStale(cmd.OutOrStdout(), stale)
			return printLedger(cmd.OutOrStdout(), rows)
		},
	}

	var rec models.SpoilageRecord
	add := &cobra.Command{
		Use:   "add",
		Short: "Record spoiled stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := get().Service.AddSpoilage(cmd.Context(), rec)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	bindRecordFlags(add, &rec.InventoryID, &rec.Quantity, &rec.Reason)

	cmd.AddCommand(list, add)
	return cmd
}

func bindRecordFlags(cmd *cobra.Command, item *string, qty *float64, reason *string) {
	f := cmd.Flags()
	f.StringVar(item, "item", "", "inventory item id")
	f.Float64Var(qty, "quantity", 0, "quantity")
	f.StringVar(reason, "reason", "", "reason")
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
