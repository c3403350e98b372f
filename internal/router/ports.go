package router

import (
	"sync"

	"github.com/skobkin/scribblego/internal/settings"
	"github.com/skobkin/scribblego/internal/transport"
)

// PortSet maps each transport slot to the port currently serving it.
// The wireless slots are swapped at runtime when the wireless mode changes.
type PortSet struct {
	mu    sync.RWMutex
	ports [settings.NumTransports]transport.Port
}

func NewPortSet(ports ...transport.Port) *PortSet {
	s := &PortSet{}
	for _, p := range ports {
		if p != nil && p.Kind().Valid() {
			s.ports[p.Kind()] = p
		}
	}

	return s
}

func (s *PortSet) Get(t settings.Transport) transport.Port {
	if !t.Valid() {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ports[t]
}

// Swap installs p in slot t and returns the previous port. A nil p empties the slot.
func (s *PortSet) Swap(t settings.Transport, p transport.Port) transport.Port {
	if !t.Valid() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.ports[t]
	s.ports[t] = p

	return prev
}

func (s *PortSet) All() []transport.Port {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]transport.Port, 0, len(s.ports))
	for _, p := range s.ports {
		if p != nil {
			out = append(out, p)
		}
	}

	return out
}

// Connected lists the transports whose port currently reports a connection.
func (s *PortSet) Connected() []settings.Transport {
	var out []settings.Transport
	for _, p := range s.All() {
		if p.Connected() {
			out = append(out, p.Kind())
		}
	}

	return out
}
