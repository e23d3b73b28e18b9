// Package transport dials Electrum servers and frames traffic as
// line-delimited JSON.
//
// An Endpoint names a server as host:port:scheme, where scheme "t" is
// plain TCP and "s" is TLS. TLS connections are gated through the
// certificate trust manager before any payload data is exchanged. The
// Pipe type carries the framing: one JSON object per UTF-8 text line,
// with short receive polls so callers can interleave other work.
package transport
