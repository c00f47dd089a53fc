// Package augment rewrites outgoing MCP responses to carry per-widget _meta.
//
// The transport layer serializes tool/resource listings without widget
// metadata; this package intercepts the finished response and injects it
// after the fact. Two body shapes are handled: a single JSON document, which
// is buffered and rewritten wholesale, and a Server-Sent-Events stream,
// which is reassembled into discrete events so each data payload can be
// rewritten without corrupting the framing. Anything else passes through
// untouched, and a payload that fails to parse is forwarded as-is rather
// than failing the request.
package augment
