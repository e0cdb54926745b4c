package common

// Request headers understood by the HTTP API.
const (
	// AuthorizationHeaderName carries "Bearer <token>".
	AuthorizationHeaderName = "Authorization"
	// AuthTokenHeaderName carries a plain token and is consulted after
	// AuthorizationHeaderName.
	AuthTokenHeaderName = "X-Auth-Token"
	// LegacyUserIDHeaderName carries a bare user id. Honoured only when the
	// deployment sits behind a gateway that sets it.
	LegacyUserIDHeaderName = "X-User-Id"
	// AdminTokenHeaderName carries the static administrative token.
	AdminTokenHeaderName = "X-Admin-Token"
	// RequestIDHeaderName is echoed back on every response.
	RequestIDHeaderName = "X-Request-Id"
)
