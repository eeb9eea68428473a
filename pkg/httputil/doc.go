// Package httputil provides HTTP utilities for standardized responses and
// the middleware shared by every route.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, provider)
//	httputil.WriteUnauthorized(w, "authentication failed")
//	httputil.WriteServiceUnavailable(w, "identity provider unavailable, try again")
//
// Error bodies carry the request id when RequestIDMiddleware ran first:
//
//	{"error": "authentication failed", "request_id": "9b2f..."}
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(log),
//		httputil.RecoveryMiddleware(log),
//	)(router)
package httputil
