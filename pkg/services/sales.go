package services

import (
	"context"
	"sort"
	"time"

	"github.com/wurt83ow/backoffice-client/pkg/backend"
	"github.com/wurt83ow/backoffice-client/pkg/models"
)

// SalesReport fetches sales between from and to, inclusive. Lines are sorted
// by revenue, highest first.
func (s *Service) SalesReport(ctx context.Context, from, to time.Time) (models.SalesReport, bool, error) {
	if to.Before(from) {
		return models.SalesReport{}, false, invalid("report range ends before it starts")
	}
	endpoint, err := backend.SalesReportPath(from, to)
	if err != nil {
		return models.SalesReport{}, false, err
	}

	var report models.SalesReport
	stale, err := s.list(ctx, endpoint, &report)
	if err != nil {
		return models.SalesReport{}, false, err
	}

	if report.Total == 0 {
		for _, l := range report.Lines {
			report.Total += l.Revenue
		}
	}
	sort.SliceStable(report.Lines, func(i, j int) bool {
		return report.Lines[i].Revenue > report.Lines[j].Revenue
	})
	return report, stale, nil
}
