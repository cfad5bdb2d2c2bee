package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/edutracker/edutracker/internal/application/eventhandler"
	"github.com/edutracker/edutracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE RISK SCAN JOB
// ══════════════════════════════════════════════════════════════════════════════

// RiskScanner lists members under the attendance threshold.
type RiskScanner interface {
	Scan(ctx context.Context) ([]eventhandler.RiskAlert, error)
}

// AttendanceScanJob periodically rechecks every reinforcement group, so
// members who stopped attending are reported even when no new session is
// recorded.
type AttendanceScanJob struct {
	scanner RiskScanner
	logger  *slog.Logger

	lastAlerts atomic.Value // []eventhandler.RiskAlert
}

// NewAttendanceScanJob creates the job.
func NewAttendanceScanJob(s RiskScanner, l *slog.Logger) *AttendanceScanJob {
	return &AttendanceScanJob{
		scanner: s,
		logger:  logger.OrDefault(l).With(slog.String("job", "attendance_risk_scan")),
	}
}

// Name implements scheduler.Job.
func (j *AttendanceScanJob) Name() string { return "attendance_risk_scan" }

// Description implements scheduler.Job.
func (j *AttendanceScanJob) Description() string {
	return "Report reinforcement members with low attendance"
}

// Run implements scheduler.Job.
func (j *AttendanceScanJob) Run(ctx context.Context) error {
	alerts, err := j.scanner.Scan(ctx)
	if err != nil {
		return err
	}
	j.lastAlerts.Store(alerts)
	j.logger.Debug("scan stored", slog.Int("alerts", len(alerts)))
	return nil
}

// LastAlerts returns the alerts of the last successful run.
func (j *AttendanceScanJob) LastAlerts() []eventhandler.RiskAlert {
	if v := j.lastAlerts.Load(); v != nil {
		return v.([]eventhandler.RiskAlert)
	}
	return nil
}
