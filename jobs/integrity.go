package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/trialbalance/internal/accounting/books"
	"github.com/odyssey-erp/trialbalance/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/trialbalance/internal/jobs"
)

// IntegrityJob verifies that trial balance debits and credits agree.
type IntegrityJob struct {
	Service *books.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityJob wires dependencies for the integrity handler.
func NewIntegrityJob(service *books.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle processes TaskBooksIntegrity tasks. An unbalanced trial balance is
// reported, not retried.
func (j *IntegrityJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("books integrity: handler not configured")
	}
	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskBooksIntegrity)
	defer func() { err = tracker.End(err) }()

	logger := jobLogger(j.Logger, TaskBooksIntegrity)
	totals, err := j.Service.CheckIntegrity(ctx)
	switch {
	case errors.Is(err, shared.ErrUnbalancedTrialBalance):
		metrics.AddUnbalanced()
		logger.Warn("trial balance out of balance",
			slog.String("debit", totals.Debit.StringFixed(2)),
			slog.String("credit", totals.Credit.StringFixed(2)))
		return nil
	case err != nil:
		logger.Error("integrity check", slog.Any("error", err))
		return err
	}
	logger.Info("trial balance integrity ok", slog.String("total", totals.Debit.StringFixed(2)))
	return nil
}
