// Package instagram is the HTTP transport shared by every retrieval tier.
//
// A Client applies default headers (per-request headers win), routes through
// an optional proxy, waits on the shared rate limiter, retries transient
// failures and maps HTTP statuses to typed errors from pkg/errors:
//
//	401, 403   auth
//	404        not_found
//	429        rate_limit
//	5xx        server_error
//
// Responses are read fully, so a failed call still hands the body back to
// callers that need to inspect it (the private API reports login_required
// in a 403 body).
package instagram
