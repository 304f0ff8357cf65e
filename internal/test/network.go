package test

import (
	"errors"
	"sync"

	"github.com/bridgeval/engine/pkg/party"
)

// Envelope is a frame in flight between two accounts.
type Envelope struct {
	From, To party.AccountID
	Frame    []byte
}

// Network is an in-memory transport shared by several simulated validators.
//
// Frames are queued until the test delivers them, so the order and timing of
// delivery are under the test's control.
type Network struct {
	mtx     sync.Mutex
	queue   []Envelope
	blocked map[party.AccountID]bool
}

// NewNetwork returns an empty Network.
func NewNetwork() *Network {
	return &Network{blocked: make(map[party.AccountID]bool)}
}

// Endpoint returns the transport used by self.
func (n *Network) Endpoint(self party.AccountID) *Endpoint {
	return &Endpoint{network: n, self: self}
}

// Block silently discards every frame sent by id from now on.
func (n *Network) Block(id party.AccountID) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.blocked[id] = true
}

// Next removes the oldest queued frame.
func (n *Network) Next() (Envelope, bool) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if len(n.queue) == 0 {
		return Envelope{}, false
	}
	e := n.queue[0]
	n.queue = n.queue[1:]
	return e, true
}

// Take removes and returns every queued frame matching keep.
func (n *Network) Take(keep func(Envelope) bool) []Envelope {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	var taken, rest []Envelope
	for _, e := range n.queue {
		if keep(e) {
			taken = append(taken, e)
		} else {
			rest = append(rest, e)
		}
	}
	n.queue = rest
	return taken
}

// Pending returns the number of queued frames.
func (n *Network) Pending() int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return len(n.queue)
}

// Endpoint is the transport of a single account on a Network.
type Endpoint struct {
	network *Network
	self    party.AccountID
}

// Send queues a frame for to.
func (e *Endpoint) Send(to party.AccountID, frame []byte) error {
	if to == e.self {
		return errors.New("test: sending to self")
	}
	e.network.mtx.Lock()
	defer e.network.mtx.Unlock()
	if e.network.blocked[e.self] {
		return nil
	}
	e.network.queue = append(e.network.queue, Envelope{From: e.self, To: to, Frame: append([]byte(nil), frame...)})
	return nil
}
