// Package retry provides backoff and retry logic for transient upstream
// failures.
//
// Only network, rate limit and 5xx errors are retried. Session expiry is
// never retried here; the private tier handles it by logging in again.
//
//	cfg := retry.FromConfig(appCfg.Retry, log)
//	body, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]byte, error) {
//		return fetch(ctx, url)
//	}, cfg)
package retry
