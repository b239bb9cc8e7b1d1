package client

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/wurt83ow/backoffice-client/pkg/models"
	"github.com/wurt83ow/backoffice-client/pkg/replay"
	"github.com/wurt83ow/backoffice-client/pkg/syncinfo"
)

const timeLayout = "2006-01-02 15:04"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printResult(w io.Writer, res models.Result) {
	if res.Queued {
		return // the notifier already told the user
	}
	fmt.Fprintln(w, "Done")
}

func printStale(w io.Writer, stale bool) {
	if stale {
		fmt.Fprintln(w, "(backend unreachable, showing last known data)")
	}
}

func printReport(w io.Writer, r replay.Report) {
	if r.Attempted == 0 {
		fmt.Fprintln(w, "Nothing to sync")
		return
	}
	fmt.Fprintf(w, "Synced %d of %d queued writes", r.Replayed, r.Attempted)
	if r.Failed > 0 {
		fmt.Fprintf(w, ", %d failed", r.Failed)
	}
	if r.Abandoned > 0 {
		fmt.Fprintf(w, ", %d abandoned (see queue abandoned)", r.Abandoned)
	}
	fmt.Fprintf(w, "; %d still pending\n", r.Remaining)
}

func printSyncInfo(w io.Writer, info syncinfo.SyncInfo) {
	if info.LastSync.IsZero() {
		fmt.Fprintln(w, "Last sync: never")
		return
	}
	fmt.Fprintf(w, "Last sync: %s, %d replayed, %d failed", info.LastSync.Local().Format(timeLayout), info.Replayed, info.Failed)
	if info.Error != "" {
		fmt.Fprintf(w, " (%s)", info.Error)
	}
	if info.Clean() {
		fmt.Fprint(w, ", all writes delivered")
	}
	fmt.Fprintln(w)
}

func printActions(w io.Writer, actions []models.QueuedAction) error {
	if len(actions) == 0 {
		fmt.Fprintln(w, "Queue is empty")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tACTION\tMETHOD\tENDPOINT\tSTATUS\tATTEMPTS\tQUEUED AT\tLAST ERROR")
	for _, a := range actions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			a.ID, a.Action, a.Method, a.Endpoint, a.Status, a.Attempts,
			a.EnqueuedAt.Local().Format(timeLayout), truncate(a.LastError, 60))
	}
	return tw.Flush()
}

func printInventory(w io.Writer, items []models.InventoryItem) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tQUANTITY\tUNIT\tTHRESHOLD\tSTATUS\tLOCATION")
	for _, i := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\t%g\t%s\t%s\n",
			i.ID, i.Name, i.Category, i.Quantity, i.Unit, i.Threshold, i.Status(), i.Location)
	}
	return tw.Flush()
}

func printLedger(w io.Writer, rows [][4]string) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tITEM\tQUANTITY\tREASON")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r[0], r[1], r[2], r[3])
	}
	return tw.Flush()
}

func printMenu(w io.Writer, items []models.MenuItem) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tINGREDIENTS")
	for _, m := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\n", m.ID, m.Name, m.Category, m.Price, len(m.Ingredients))
	}
	return tw.Flush()
}

func printSales(w io.Writer, r models.SalesReport) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "MENU ITEM\tSOLD\tREVENUE")
	for _, l := range r.Lines {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\n", l.Name, l.Quantity, l.Revenue)
	}
	fmt.Fprintf(tw, "TOTAL\t\t%.2f\n", r.Total)
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
