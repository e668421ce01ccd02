// Package core implements the provider-linking service: the authorization
// orchestrator that sequences handshake legs, the correlation-state codec and
// one-shot handshake records that survive the browser redirect, the provider
// registry, and the shared contracts implemented by providers, stores, and
// webhook verifiers.
package core
