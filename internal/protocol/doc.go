// Package protocol defines the wire types shared by every transport: the
// JSON-RPC 2.0 framing, the MCP handshake and tool-call envelopes, and the
// serialization boundary that keeps monetary amounts and chain indices as
// decimal strings instead of binary floating point.
package protocol
