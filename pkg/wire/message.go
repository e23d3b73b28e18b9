package wire

// Methods with protocol-level special handling.
const (
	// MethodServerVersion is the version handshake, doubling as the
	// keepalive ping.
	MethodServerVersion = "server.version"

	// MethodHeadersSubscribe notifies with the new header in params[0].
	MethodHeadersSubscribe = "blockchain.headers.subscribe"

	// MethodNumBlocksSubscribe notifies with the block count in params[0].
	MethodNumBlocksSubscribe = "blockchain.numblocks.subscribe"

	// MethodAddressSubscribe notifies per address: params[0] is the
	// address, params[1] its new status.
	MethodAddressSubscribe = "blockchain.address.subscribe"

	// MethodServerPeers lists the peers known to the server.
	MethodServerPeers = "server.peers.subscribe"
)

// Request is an outbound RPC call.
type Request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// Message is a decoded inbound frame: a response to a pending request
// when ID is present, an unsolicited notification otherwise.
type Message struct {
	ID     *uint64 `json:"id,omitempty"`
	Method string  `json:"method,omitempty"`
	Params []any   `json:"params,omitempty"`
	Result any     `json:"result,omitempty"`
	Error  any     `json:"error,omitempty"`
}

// IsResponse reports whether the frame answers a pending request.
func (m *Message) IsResponse() bool {
	return m.ID != nil
}

// Normalize rewrites a notification payload whose parameters smuggle the
// subscription's current value, returning the lifted result and the
// remaining parameters. Methods without that quirk pass through with a
// nil result and their parameters untouched.
func Normalize(method string, params []any) (result any, out []any) {
	switch method {
	case MethodNumBlocksSubscribe, MethodHeadersSubscribe:
		if len(params) > 0 {
			return params[0], []any{}
		}
	case MethodAddressSubscribe:
		if len(params) >= 2 {
			return params[1], []any{params[0]}
		}
	}
	return nil, params
}
