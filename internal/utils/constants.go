package utils

const (
	AppName    = "ZoomGo"
	AppVersion = "1.0.0"
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInternalServer   = "internal server error"
	ErrValidationFailed = "validation failed"
	ErrRateLimited      = "too many requests"
)

// Cache Keys
const (
	CacheRateLimitPrefix = "rate_limit:"
)

// Request context keys
const (
	ContextUserID    = "user_id"
	ContextRequestID = "request_id"
)
