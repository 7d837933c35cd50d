// Package webhook posts dispatch events to operator-configured URLs.
//
// Two call shapes exist. Notifications are fire-and-forget and go through a
// bounded queue drained by rate-limited workers. Validation is synchronous:
// only a 2xx answer lets a message through.
package webhook
