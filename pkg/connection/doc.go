// Package connection maintains one client connection to an Electrum
// server.
//
// An Interface is a background worker owning a single transport pipe.
// Its owner talks to it only through queues: requests go in through
// Send, correlated responses and notifications come out on per-request
// or shared Queues, and lifecycle transitions arrive on the shared
// queue as events carrying no reply. The worker pings the server with
// server.version, detects stale peers, and fails terminally; retrying
// means constructing a fresh Interface.
package connection
