package tasks

import (
	"github.com/sadeshahansana5-cloud/mediadex/internal/scheduler"
	"github.com/sadeshahansana5-cloud/mediadex/internal/stats"
)

// RegisterCatalogStatsTask registers the daily catalog summary report.
func RegisterCatalogStatsTask(sched *scheduler.Scheduler, svc *stats.Service) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          "catalog-stats",
		Name:        "Catalog Stats Report",
		Description: "Logs record totals, per-category counts, and database size",
		Cron:        "0 0 * * *", // Midnight daily
		RunOnStart:  true,
		Func:        svc.LogOverview,
	})
}
