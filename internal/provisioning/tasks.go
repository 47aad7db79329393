package provisioning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	// QueueProvisioning is the queue namespace tasks are placed on
	QueueProvisioning = "provisioning"
	// TaskTypeEnsureNamespace is the task type for creating an account namespace
	TaskTypeEnsureNamespace = "namespace:ensure"
)

// EnsureNamespacePayload is the payload of TaskTypeEnsureNamespace
type EnsureNamespacePayload struct {
	Username string `json:"username"`
}

// NewEnsureNamespaceTask constructs an asynq task for username
func NewEnsureNamespaceTask(username string) (*asynq.Task, error) {
	data, err := json.Marshal(EnsureNamespacePayload{Username: username})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeEnsureNamespace, data), nil
}

// TaskHandler processes provisioning tasks in the worker
type TaskHandler struct {
	ensurer NamespaceEnsurer
	logger  *zap.Logger
	metrics Metrics
}

// NewTaskHandler creates a task handler. metrics may be nil.
func NewTaskHandler(ensurer NamespaceEnsurer, logger *zap.Logger, metrics Metrics) *TaskHandler {
	return &TaskHandler{
		ensurer: ensurer,
		logger:  logger,
		metrics: metrics,
	}
}

// HandleEnsureNamespace processes TaskTypeEnsureNamespace tasks. Failures are final.
func (h *TaskHandler) HandleEnsureNamespace(ctx context.Context, t *asynq.Task) error {
	var payload EnsureNamespacePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Username == "" {
		h.logger.Error("invalid provisioning task payload", zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
	}

	outcome := ensure(ctx, h.ensurer, payload.Username, h.logger)
	if h.metrics != nil {
		h.metrics.ObserveProvisioning(outcome)
	}

	if outcome == OutcomeFailed || outcome == OutcomeInvalid {
		return fmt.Errorf("provisioning %s for %q: %w", outcome, payload.Username, asynq.SkipRetry)
	}
	return nil
}

// Register adds the handler to mux
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeEnsureNamespace, h.HandleEnsureNamespace)
}
