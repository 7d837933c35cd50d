// Package server is the HTTP ingress: trigger and inbound endpoints, the
// history ledger view, Prometheus metrics and optional pprof, behind an
// optional bearer token.
package server
