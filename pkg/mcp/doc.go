// Package mcp implements the Model Context Protocol client layer:
// wire types, the three transport variants (stdio, sse, https) and the
// Client that unifies them behind one call surface.
//
// A Client owns exactly one live transport for its configured server.
// Calls are correlated to responses by request id through per-request
// completion channels, so many calls can be in flight concurrently
// with no ordering guarantee between them. Rate limiting is applied
// before dispatch and redaction before any logging, never before the
// payload crosses the wire.
//
// Transport selection dispatches on config.TransportKind; the set of
// variants is closed and the Client never inspects concrete transport
// types at runtime.
package mcp
