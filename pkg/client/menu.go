package client

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wurt83ow/backoffice-client/pkg/models"
	"github.com/wurt83ow/backoffice-client/pkg/offlinequeue"
	"github.com/wurt83ow/backoffice-client/pkg/services"
)

var ingredientFormat = regexp.MustCompile(`^([^:\s]+):(\d+(?:\.\d+)?)$`)

func parseIngredients(specs []string) ([]models.MenuIngredient, error) {
	out := make([]models.MenuIngredient, 0, len(specs))
	for _, s := range specs {
		m := ingredientFormat.FindStringSubmatch(s)
		if m == nil {
			return nil, fmt.Errorf("ingredient %q must look like <item-id>:<quantity>", s)
		}
		qty, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, err
		}
		out = append(out, models.MenuIngredient{InventoryID: m[1], Quantity: qty})
	}
	return out, nil
}

type menuFlags struct {
	item        models.MenuItem
	ingredients []string
	image       string
}

func (m *menuFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&m.item.Name, "name", "", "dish name")
	f.StringVar(&m.item.Category, "category", "", "menu category")
	f.Float64Var(&m.item.Price, "price", 0, "price")
	f.StringVar(&m.item.Description, "description", "", "description")
	f.StringSliceVar(&m.ingredients, "ingredient", nil, "ingredient as <item-id>:<quantity>, repeatable")
	f.StringVar(&m.image, "image", "", "path to a photo of the dish")
}

func (m *menuFlags) build() (models.MenuItem, *models.Attachment, error) {
	item := m.item
	ingredients, err := parseIngredients(m.ingredients)
	if err != nil {
		return item, nil, err
	}
	item.Ingredients = ingredients

	if m.image == "" {
		return item, nil, nil
	}
	att, err := offlinequeue.AttachFile(services.ImageField, m.image)
	if err != nil {
		return item, nil, err
	}
	return item, &att, nil
}

func newMenuCommand(get func() *App) *cobra.Command {
	cmd := &cobra.Command{Use: "menu", Short: "Menu items and recipes"}

	var category, search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List menu items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, stale, err := get().Service.ListMenu(cmd.Context(), category, search)
			if err != nil {
				return err
			}
			printStale(cmd.OutOrStdout(), stale)
			return printMenu(cmd.OutOrStdout(), items)
		},
	}
	list.Flags().StringVar(&category, "category", "", "only this category")
	list.Flags().StringVarP(&search, "search", "s", "", "match the name")

	var addFlags menuFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a menu item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			item, image, err := addFlags.build()
			if err != nil {
				return err
			}
			res, err := get().Service.AddMenuItem(cmd.Context(), item, image)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	addFlags.bind(add)

	var updateFlags menuFlags
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a menu item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, image, err := updateFlags.build()
			if err != nil {
				return err
			}
			res, err := get().Service.UpdateMenuItem(cmd.Context(), args[0], item, image)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	updateFlags.bind(update)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a menu item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := get().Service.DeleteMenuItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.AddCommand(list, add, update, del)
	return cmd
}

func newSalesCommand(get func() *App) *cobra.Command {
	cmd := &cobra.Command{Use: "sales", Short: "Sales analytics"}

	var from, to string
	var asCSV bool
	report := &cobra.Command{
		Use:   "report",
		Short: "Revenue per menu item over a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(from, to, time.Now())
			if err != nil {
				return err
			}
			r, stale, err := get().Service.SalesReport(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			if asCSV {
				return services.WriteCSV(cmd.OutOrStdout(), services.SalesRows(r))
			}
			printStale(cmd.OutOrStdout(), stale)
			return printSales(cmd.OutOrStdout(), r)
		},
	}
	report.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default: 7 days ago)")
	report.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (default: today)")
	report.Flags().BoolVar(&asCSV, "csv", false, "write CSV instead of a table")

	cmd.AddCommand(report)
	return cmd
}

// parseRange resolves the inclusive day range into [start of from, start of the day after to).
func parseRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	end := today
	if to != "" {
		d, err := time.ParseInLocation(time.DateOnly, to, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
		end = d
	}
	start := end.AddDate(0, 0, -6)
	if from != "" {
		d, err := time.ParseInLocation(time.DateOnly, from, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
		}
		start = d
	}
	end = end.AddDate(0, 0, 1)
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from %s is after --to %s", start.Format(time.DateOnly), end.AddDate(0, 0, -1).Format(time.DateOnly))
	}
	return start, end, nil
}
