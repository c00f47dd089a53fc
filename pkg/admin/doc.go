// Package admin provides the internal widget management endpoints: an
// unauthenticated status endpoint reporting registry diagnostics, and a
// token-gated, rate-limited refresh endpoint that reloads the widget
// manifest without restarting the server.
package admin
