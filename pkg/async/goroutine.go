package async

import (
	"context"
	"time"

	"github.com/gatherhq/gather/pkg/observability"
)

// SafeGo runs fn on its own goroutine with a bounded lifetime. The task
// receives a child context that expires after timeout, panics are
// recovered and logged with a stack trace, and a non-nil error from fn
// is logged rather than propagated.
//
// Audit trail writes run through here so a slow or failing audit insert
// never blocks the request that produced the event.
//
//	SafeGo(context.Background(), logger, 5*time.Second, "audit write", func(ctx context.Context) error {
//	    return sink.Log(ctx, event)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
		}
	}()
}
