package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/trialbalance/internal/accounting/books"
	"github.com/odyssey-erp/trialbalance/internal/accounting/export"
	jobmetrics "github.com/odyssey-erp/trialbalance/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ExportJob renders CSV exports in the background.
type ExportJob struct {
	Service *books.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewExportJob wires dependencies for the export handler.
func NewExportJob(service *books.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExportJob {
	return &ExportJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle processes TaskBooksExport tasks.
func (j *ExportJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("books export: handler not configured")
	}
	var payload ExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("books export: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	view, err := export.ParseView(payload.View)
	if err != nil {
		return fmt.Errorf("books export: %v: %w", err, asynq.SkipRetry)
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskBooksExport)
	defer func() { err = tracker.End(err) }()

	logger := jobLogger(j.Logger, TaskBooksExport).With(slog.String("view", string(view)))
	size, err := j.Service.StoreExport(ctx, view)
	if err != nil {
		logger.Error("render export", slog.Any("error", err))
		return err
	}
	logger.Info("export stored", slog.String("key", books.ExportKey(string(view))), slog.Int("bytes", size))
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
