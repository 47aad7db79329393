package provisioning

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Outcomes reported to Metrics
const (
	OutcomeCreated       = "created"
	OutcomeExists        = "exists"
	OutcomeInvalid       = "invalid_name"
	OutcomeFailed        = "failed"
	OutcomeEnqueued      = "enqueued"
	OutcomeEnqueueFailed = "enqueue_failed"
)

// NamespaceEnsurer is the interface that wraps namespace creation.
type NamespaceEnsurer interface {
	// Method EnsureNamespace creates the namespace for username.
	//
	// If the namespace already exists, false will be returned together with a "nil" error.
	EnsureNamespace(ctx context.Context, username string) (bool, error)
}

// Metrics is the interface that wraps the provisioning outcome counter
type Metrics interface {
	ObserveProvisioning(outcome string)
}

// Dispatcher runs provisioning for new accounts in the background, each attempt bounded by a timeout.
// It never retries and never reports back to the caller of Provision.
type Dispatcher struct {
	mode    string
	run     func(ctx context.Context, username string) string
	timeout time.Duration
	logger  *zap.Logger
	metrics Metrics
	wg      sync.WaitGroup
}

// NewInlineDispatcher provisions namespaces from this process
func NewInlineDispatcher(ensurer NamespaceEnsurer, timeout time.Duration, logger *zap.Logger, metrics Metrics) *Dispatcher {
	return &Dispatcher{
		mode: "inline",
		run: func(ctx context.Context, username string) string {
			return ensure(ctx, ensurer, username, logger)
		},
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// NewQueueDispatcher hands namespaces over to the worker through the task queue.
// Tasks are enqueued with no retries; the worker's attempt is the only one.
func NewQueueDispatcher(client *asynq.Client, timeout time.Duration, logger *zap.Logger, metrics Metrics) *Dispatcher {
	return &Dispatcher{
		mode: "queue",
		run: func(ctx context.Context, username string) string {
			task, err := NewEnsureNamespaceTask(username)
			if err != nil {
				logger.Error("failed to build provisioning task", zap.Error(err), zap.String("username", username))
				return OutcomeEnqueueFailed
			}
			info, err := client.EnqueueContext(ctx, task,
				asynq.Queue(QueueProvisioning),
				asynq.MaxRetry(0),
				asynq.Timeout(timeout),
			)
			if err != nil {
				logger.Error("failed to enqueue provisioning task", zap.Error(err), zap.String("username", username))
				return OutcomeEnqueueFailed
			}
			logger.Info("provisioning task enqueued", zap.String("task_id", info.ID), zap.String("username", username))
			return OutcomeEnqueued
		},
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Provision starts provisioning for username and returns immediately.
// The attempt runs on a fresh context so it outlives the request that triggered it.
func (d *Dispatcher) Provision(username string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		outcome := d.run(ctx, username)
		if d.metrics != nil {
			d.metrics.ObserveProvisioning(outcome)
		}
	}()
}

// Wait blocks until in-flight attempts finish or ctx is done
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("provisioning still in flight at shutdown", zap.String("mode", d.mode))
		return ctx.Err()
	}
}

// ensure runs one attempt and maps its result to an outcome
func ensure(ctx context.Context, ensurer NamespaceEnsurer, username string, logger *zap.Logger) string {
	created, err := ensurer.EnsureNamespace(ctx, username)
	switch {
	case errors.Is(err, ErrInvalidNamespaceName):
		logger.Warn("skipping namespace provisioning", zap.Error(err), zap.String("username", username))
		return OutcomeInvalid
	case err != nil:
		logger.Error("namespace provisioning failed", zap.Error(err), zap.String("username", username))
		return OutcomeFailed
	case created:
		return OutcomeCreated
	default:
		return OutcomeExists
	}
}
