package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Market Data Errors
	ErrRateLimited       = errors.New("API rate limit exceeded")
	ErrUpstream          = errors.New("upstream market data provider error")
	ErrMalformedResponse = errors.New("malformed upstream response")
	ErrExternalService   = errors.New("external market data service unavailable")
	ErrAuthFailed        = errors.New("stream authentication failed (check API keys)")
	ErrConnectionFailed  = errors.New("failed to connect to the market data stream")

	// Order Errors
	ErrInsufficientFunds  = errors.New("insufficient funds for order")
	ErrInsufficientShares = errors.New("insufficient shares for order")
	ErrOrderNotFound      = errors.New("order not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidOrderState  = errors.New("order is not in a state that allows this operation")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
	ErrDeleteFailed   = errors.New("database delete failed")
)
