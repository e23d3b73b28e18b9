// Package wire defines the JSON wire messages exchanged with servers.
//
// The protocol is line oriented: each frame is one JSON object encoded as
// a single UTF-8 text line. Client-to-server frames are requests carrying
// an integer id, a method name and positional parameters. Server-to-client
// frames either answer a request (matching id, result or error) or are
// unsolicited notifications (no id, method and parameters).
//
// A handful of subscription methods denormalize their notification
// payloads by smuggling the current value inside the parameter list;
// Normalize rewrites those into the regular result/params shape.
package wire
