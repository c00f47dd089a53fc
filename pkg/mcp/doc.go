// Package mcp implements the Model Context Protocol (MCP) server for the
// pizza widget catalog.
//
// MCP enables AI agents to discover and invoke widgets through a
// standardized JSON-RPC 2.0 based protocol. Each widget in the registry is
// projected three ways:
//
//   - a tool (name = widget id, one required string argument)
//   - a resource (uri = widget template URI, HTML body)
//   - a resource template (uriTemplate = widget template URI)
//
// # Protocol Version
//
// This implementation follows MCP protocol version 2025-06-18 over
// Streamable HTTP: JSON-RPC requests via POST and a server-to-client
// notification stream via GET with SSE.
//
// # Sessions
//
// initialize creates a session and returns its id in the Mcp-Session-Id
// response header; every other method requires that header. Idle sessions
// expire and are cleaned up periodically.
//
// Widget _meta is not attached here. The augmentation middleware wrapping
// this handler injects it into outgoing responses.
package mcp
