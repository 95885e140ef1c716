package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// ExportFunc writes one attendance report and returns the row count.
type ExportFunc func(ctx context.Context) (int, error)

// ReportScheduler runs a CSV export on a cron schedule.
type ReportScheduler struct {
	scheduler *gocron.Scheduler
	export    ExportFunc
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewReportScheduler accepts standard five-field cron expressions and
// descriptors such as "@daily" or "@every 1h".
func NewReportScheduler(expr string, export ExportFunc) (*ReportScheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	rs := &ReportScheduler{
		scheduler: gocron.NewScheduler(time.Local),
		export:    export,
		ctx:       ctx,
		cancel:    cancel,
	}
	rs.scheduler.SingletonModeAll()
	if _, err := rs.scheduler.Cron(expr).Do(rs.run); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid export schedule %q: %w", expr, err)
	}
	return rs, nil
}

func (rs *ReportScheduler) run() {
	n, err := rs.export(rs.ctx)
	if err != nil {
		log.Printf("scheduler: ERROR scheduled export failed: %v", err)
		return
	}
	log.Printf("scheduler: scheduled export wrote %d rows", n)
}

func (rs *ReportScheduler) Start() {
	rs.scheduler.StartAsync()
	_, next := rs.scheduler.NextRun()
	log.Printf("scheduler: attendance export scheduled, next run %s", next.Format(time.RFC3339))
}

// Stop cancels a running export and stops the scheduler.
func (rs *ReportScheduler) Stop() {
	rs.cancel()
	rs.scheduler.Stop()
	log.Println("scheduler: stopped")
}
