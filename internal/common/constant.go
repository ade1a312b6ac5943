package common

// AuthorizationHeader carries the bearer access token on outbound requests.
const AuthorizationHeader = "Authorization"

// RefreshPath is the token refresh endpoint. Requests to it are never
// recovered by the 401 handler.
const RefreshPath = "/auth/refresh"
