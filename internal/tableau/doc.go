// Package tableau is a small client for the Tableau Server REST API.
//
// It covers what a backup needs: server version discovery, site-scoped sign-in and
// sign-out, lazy paginated enumeration of sites, workbooks and data sources, and
// content download. All requests go through one rate limiter and the shared retry
// policy; non-2xx responses are mapped to classified errors (401/403 => auth,
// 404 => not_found, 429 => rate limited, 5xx => retryable server error).
package tableau
