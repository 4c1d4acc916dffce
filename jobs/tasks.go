package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/trialbalance/internal/accounting/export"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBooksExport renders a CSV view into the snapshot store.
	TaskBooksExport = "books:export"
	// TaskBooksIntegrity checks that the trial balance balances.
	TaskBooksIntegrity = "books:integrity"
)

// ExportPayload names the view to render.
type ExportPayload struct {
	View string `json:"view"`
}

// NewExportTask constructs an export task for view.
func NewExportTask(view export.View) (*asynq.Task, error) {
	data, err := json.Marshal(ExportPayload{View: string(view)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBooksExport, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewIntegrityTask constructs the periodic integrity check task.
func NewIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskBooksIntegrity, nil, asynq.Queue(QueueDefault))
}
