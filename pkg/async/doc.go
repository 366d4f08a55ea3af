// Package async runs fire-and-forget background work with guard rails.
//
// SafeGo is the only primitive: it wraps a task function with a timeout,
// panic recovery, and structured error logging so request handlers can
// hand work off (audit trail writes, for example) without risking a
// crashed process or a leaked goroutine.
//
//	async.SafeGo(context.Background(), logger, 5*time.Second, "audit write",
//		func(ctx context.Context) error {
//			return sink.Log(ctx, event)
//		})
//
// Errors returned by the task are logged, not surfaced; callers that
// need the result should not be using a fire-and-forget primitive.
package async
