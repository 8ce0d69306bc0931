package socketio

import (
	"net/netip"
	"slices"
	"sync"
)

// ConnectionLimiter caps concurrent external (non-loopback) connections.
// Loopback clients, such as a kiosk browser on the player itself, are never
// limited. Admitting an external client over the cap evicts the oldest one.
type ConnectionLimiter struct {
	mu          sync.Mutex
	maxExternal int
	external    []string          // oldest first
	known       map[string]string // clientID -> remote IP
}

func NewConnectionLimiter(maxExternal int) *ConnectionLimiter {
	if maxExternal < 1 {
		maxExternal = 1
	}
	return &ConnectionLimiter{
		maxExternal: maxExternal,
		known:       make(map[string]string),
	}
}

// Admit registers a connection and returns the ID of the client it
// displaced, or "" when nobody has to go.
func (cl *ConnectionLimiter) Admit(clientID, remoteIP string) (evicted string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, ok := cl.known[clientID]; ok {
		return ""
	}
	cl.known[clientID] = remoteIP
	if isLocalIP(remoteIP) {
		return ""
	}

	cl.external = append(cl.external, clientID)
	if len(cl.external) <= cl.maxExternal {
		return ""
	}
	evicted = cl.external[0]
	cl.external = cl.external[1:]
	delete(cl.known, evicted)
	return evicted
}

// Remove forgets a disconnected client.
func (cl *ConnectionLimiter) Remove(clientID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, ok := cl.known[clientID]; !ok {
		return
	}
	delete(cl.known, clientID)
	if i := slices.Index(cl.external, clientID); i >= 0 {
		cl.external = slices.Delete(cl.external, i, i+1)
	}
}

// External returns the number of external clients currently admitted.
func (cl *ConnectionLimiter) External() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.external)
}

func isLocalIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.Unmap().IsLoopback()
}
