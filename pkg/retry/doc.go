// Package retry retries transient failures with exponential backoff.
//
// Whether an error is retried is decided by its class from the errors
// package: transient errors are retried, invalid and fatal ones are returned
// at once. Context cancellation stops the loop between attempts.
//
//	err := retry.Do(ctx, retry.Delivery(), func(ctx context.Context) error {
//		return sink.Deliver(ctx, event)
//	})
//
// The events publisher wraps every delivery this way.
package retry
