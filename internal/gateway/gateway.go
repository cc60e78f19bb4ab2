// Package gateway implements the WebSocket gateway for real-time event
// dispatch: client connections, heartbeats, Identify/Resume authentication,
// and event broadcasting bridged from the NATS event bus. See server.go for
// the package's entrypoint.
package gateway
