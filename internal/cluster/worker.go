package cluster

import (
	"net"
)

// IdentityFunc maps a remote address to the identity used for trust scoring.
type IdentityFunc func(addr net.Addr) string

// HostIdentity returns the host part of addr, so every connection from the
// same machine shares one trust score.
func HostIdentity(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// AddrIdentity returns the full remote address (host:port). Useful when
// several workers run on one machine and must be scored separately.
func AddrIdentity(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}

// WorkerConn pairs an accepted connection with its worker identity.
// It lives for a single sort run and is discarded once Conn is closed.
type WorkerConn struct {
	Conn     net.Conn // Open connection to the worker agent
	Identity string   // Trust identity derived from the remote address
	Addr     string   // Full remote address, for logging
}

// NewWorkerConn wraps conn, deriving the identity with identify.
// A nil identify falls back to HostIdentity.
func NewWorkerConn(conn net.Conn, identify IdentityFunc) *WorkerConn {
	if identify == nil {
		identify = HostIdentity
	}
	addr := ""
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return &WorkerConn{
		Conn:     conn,
		Identity: identify(conn.RemoteAddr()),
		Addr:     addr,
	}
}

// Close closes the underlying connection.
func (w *WorkerConn) Close() error {
	return w.Conn.Close()
}
