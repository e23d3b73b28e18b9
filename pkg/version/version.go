// Package version holds the client and protocol version identifiers
// exchanged with servers during the version handshake.
package version

const (
	// Client is the client software version reported to servers.
	Client = "0.9.3"

	// Protocol is the Electrum protocol version this client speaks.
	Protocol = "0.10"
)
