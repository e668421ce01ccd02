// Package webhooks verifies and deduplicates inbound provider deliveries.
//
// The pipeline is verify first, then claim, then handle: a delivery whose
// signature does not check out never touches the ledger or the handler, and
// the caller gets back a bare 400 with no hint about which check failed.
// Verified deliveries are claimed by their provider-assigned delivery id so
// provider retries of an already processed event collapse into a 200 without
// re-running the handler.
package webhooks
