// Package server implements the WebSocket transport and bootstrap for relaychat.
//
// The implementation is organized into specialized files for configuration,
// clients, the worker pool, routing, and HTTP handlers. Each accepted
// connection becomes a Client whose read pump decodes frames and hands them
// to the worker the connection is pinned to; the worker runs the dispatcher,
// which routes on the envelope's business line to the link or room processor.
package server
