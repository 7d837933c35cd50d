// Package relay implements the dispatch pipeline of the gateway.
//
// A single message request flows through:
//
//	enabled? -> prefix match? -> rate limit -> validation webhook
//	  -> transport -> ledger -> notification webhook
//
// Each step completes before the next begins. Policy rejections (disabled,
// prefix mismatch, rate limit, failed validation) and transport failures are
// outcomes, not errors: Dispatch always returns a Result and the pipeline stays
// ready for the next request.
//
// # Ledger
//
// The Ledger is the only shared mutable state. It keeps the newest
// DefaultLedgerCapacity entries and persists the whole document through a
// Store after every append.
package relay
