// Package resilience holds the fault-tolerance primitives the engine wraps
// around provider and processor calls:
//
//   - Retry: re-runs transient failures with capped exponential backoff
//   - Bulkhead: bounds how many calls run at once
//   - RateLimiter: token bucket pacing for sink writes
//
// A typical sink write combines all three:
//
//	err := limiter.Wait(ctx, len(batch))
//	if err == nil {
//	    err = bh.Execute(ctx, func() error {
//	        return resilience.RetryFunc(ctx, policy, func() error {
//	            return sink.Write(ctx, batch)
//	        })
//	    })
//	}
package resilience
