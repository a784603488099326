// Package middleware adapts the authcore engine to net/http: bearer token
// extraction and verification, session touch-on-request, and fixed-window
// rate limiting with standard response headers.
package middleware
