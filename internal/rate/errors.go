package rate

import "errors"

var (
	// ErrRateLimited means the caller exhausted the sign-in budget for the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps every Redis failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
