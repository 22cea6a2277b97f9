// Package discovery supplies (peer_id, endpoint) observations from a
// DNS-SD-like LAN service, per spec.md §4.F. It owns no connection
// lifecycle itself; the peer manager consumes its Events channel and
// drives dialing.
package discovery
