// Package ratelimit throttles outbound requests to Instagram.
//
// TokenBucket is backed by golang.org/x/time/rate; one instance is shared by
// every tier so that the combined request rate stays under the configured
// requests per minute.
package ratelimit
