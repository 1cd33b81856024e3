// Package constants contains shared HTTP header names, content types and
// formats used across the service.
package constants

// Header names commonly used across the application.
const (
	// HeaderAuthorization is the HTTP "Authorization" header name.
	HeaderAuthorization = "Authorization"

	// HeaderContentType is the HTTP "Content-Type" header name.
	HeaderContentType = "Content-Type"

	// HeaderReferer is the HTTP "Referer" header name.
	HeaderReferer = "Referer"

	// HeaderUserAgent is the HTTP "User-Agent" header name.
	HeaderUserAgent = "User-Agent"

	// HeaderXRequestID is the custom request ID header name.
	HeaderXRequestID = "X-Request-ID"

	// HeaderXForwardedFor carries the client chain added by proxies.
	HeaderXForwardedFor = "X-Forwarded-For"

	// HeaderXRealIP is the single client address set by some proxies.
	HeaderXRealIP = "X-Real-IP"

	// HeaderCacheControl is the HTTP "Cache-Control" header name.
	HeaderCacheControl = "Cache-Control"

	// HeaderETag is the HTTP "ETag" header name.
	HeaderETag = "ETag"

	// HeaderIfNoneMatch is the HTTP "If-None-Match" header name.
	HeaderIfNoneMatch = "If-None-Match"

	// HeaderRetryAfter is the HTTP "Retry-After" header name.
	HeaderRetryAfter = "Retry-After"
)

// BearerPrefix starts an Authorization header carrying a bearer token.
const BearerPrefix = "Bearer "

// Rate limit headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// ISOTimestamp formats times like JavaScript's Date.toISOString.
const ISOTimestamp = "2006-01-02T15:04:05.000Z07:00"

// Common media / content types used in requests and responses.
const (
	// ContentTypeJSON represents "application/json".
	ContentTypeJSON = "application/json"

	// ContentTypeHTMLUTF8 represents "text/html; charset=utf-8".
	ContentTypeHTMLUTF8 = "text/html; charset=utf-8"

	// ContentTypePlainUTF8 represents "text/plain; charset=utf-8".
	ContentTypePlainUTF8 = "text/plain; charset=utf-8"
)
