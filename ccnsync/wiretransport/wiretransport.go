// Package wiretransport is a reference Transport implementation for
// ccnsync: interests and content objects are framed with RLP and
// carried over gorilla/websocket connections to a set of configured
// peers, the way the Sync protocol rides its own dedicated face in
// the original implementation.
package wiretransport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gorilla/websocket"

	"github.com/ccnxgo/ccnsync/ccnsync"
	"github.com/ccnxgo/ccnsync/log"
)

const (
	frameInterest byte = 1
	frameContent  byte = 2
)

// wireFrame is the RLP envelope every message on a peer connection
// uses.
type wireFrame struct {
	Kind       byte
	NameParts  [][]byte
	Exclude    [][]byte
	Body       []byte
	KeyMissing bool
	Final      bool
}

// pendingInterest is matched against inbound content frames by name
// prefix, not by nonce: Transport.Put (per the ccnsync.Transport
// interface) carries only the response object, not the request it
// answers, so a responder's reply is correlated the same
// content-addressed way spec.md §4.H matches NodeFetch/ContentFetch
// responses — any content object whose name extends the requested
// name satisfies it.
type pendingInterest struct {
	name       ccnsync.Name
	onResponse ccnsync.OnResponseFunc
	cancelled  atomic.Bool
}

type filterEntry struct {
	prefix     ccnsync.Name
	onInterest ccnsync.OnInterestFunc
}

// Transport broadcasts every ExpressInterest and Put to all connected
// peer links; a filter or pending-interest match happens independently
// on each side, the same shape a shared Sync face gives every
// participant in the original implementation.
type Transport struct {
	log log.Logger

	mu      sync.Mutex
	peers   map[string]*peerConn
	filters []filterEntry
	pending []*pendingInterest

	upgrader websocket.Upgrader
}

type peerConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes; gorilla/websocket forbids concurrent writers
}

// New constructs an empty Transport. Connect and Accept add peer
// links; Handler exposes an http.Handler for an inbound listener.
func New(logger log.Logger) *Transport {
	if logger == nil {
		logger = log.Root()
	}
	return &Transport{
		log:   logger,
		peers: make(map[string]*peerConn),
	}
}

// Connect dials a peer and adds it to the broadcast set.
func (t *Transport) Connect(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	t.addPeer(url, conn)
	return nil
}

// Handler returns an http.Handler suitable for accepting inbound peer
// connections, e.g. mounted at "/sync" on a cmd/ccnsyncd listener.
func (t *Transport) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := t.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.log.Warn("websocket upgrade failed", "err", err)
			return
		}
		t.addPeer(r.RemoteAddr, conn)
	})
}

func (t *Transport) addPeer(id string, conn *websocket.Conn) {
	pc := &peerConn{conn: conn}
	t.mu.Lock()
	t.peers[id] = pc
	t.mu.Unlock()
	go t.readLoop(id, pc)
}

func (t *Transport) readLoop(id string, pc *peerConn) {
	defer func() {
		t.mu.Lock()
		delete(t.peers, id)
		t.mu.Unlock()
		pc.conn.Close()
	}()
	for {
		_, data, err := pc.conn.ReadMessage()
		if err != nil {
			t.log.Debug("peer link closed", "peer", id, "err", err)
			return
		}
		var fr wireFrame
		if err := rlp.DecodeBytes(data, &fr); err != nil {
			t.log.Warn("malformed frame", "peer", id, "err", err)
			continue
		}
		t.dispatch(fr)
	}
}

func (t *Transport) dispatch(fr wireFrame) {
	switch fr.Kind {
	case frameInterest:
		name := ccnsync.Name(fr.NameParts)
		var exclude []ccnsync.Hash
		for _, e := range fr.Exclude {
			if len(e) == ccnsync.HashSize {
				var h ccnsync.Hash
				copy(h[:], e)
				exclude = append(exclude, h)
			}
		}
		t.mu.Lock()
		matches := make([]ccnsync.OnInterestFunc, 0, 1)
		for _, f := range t.filters {
			if name.HasPrefix(f.prefix) {
				matches = append(matches, f.onInterest)
			}
		}
		t.mu.Unlock()
		for _, cb := range matches {
			cb(name, exclude)
		}

	case frameContent:
		name := ccnsync.Name(fr.NameParts)
		t.mu.Lock()
		var matches []*pendingInterest
		for _, p := range t.pending {
			if !p.cancelled.Load() && name.HasPrefix(p.name) {
				matches = append(matches, p)
			}
		}
		t.mu.Unlock()
		ev := ccnsync.ResponseEvent{
			KeyMissing: fr.KeyMissing,
			Final:      fr.Final,
		}
		if len(fr.Body) > 0 || len(fr.NameParts) > 0 {
			obj := ccnsync.ContentObject{Name: name, Body: fr.Body}
			ev.Content = &obj
		}
		for _, p := range matches {
			p.onResponse(ev)
		}
	}
}

func (t *Transport) broadcast(fr wireFrame) {
	data, err := rlp.EncodeToBytes(fr)
	if err != nil {
		t.log.Warn("frame encode failed", "err", err)
		return
	}
	t.mu.Lock()
	peers := make([]*peerConn, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.mu.Unlock()
	for _, p := range peers {
		p.mu.Lock()
		err := p.conn.WriteMessage(websocket.BinaryMessage, data)
		p.mu.Unlock()
		if err != nil {
			t.log.Debug("write to peer failed", "err", err)
		}
	}
}

// ExpressInterest broadcasts an interest frame to every connected peer
// and registers onResponse against matching inbound content frames.
// Each matching frame is delivered with that frame's Final flag; the
// transport generates no timeout and no separate Final event, and the
// interest stays registered until the returned cancel func is called.
func (t *Transport) ExpressInterest(name ccnsync.Name, tmpl ccnsync.InterestTemplate, onResponse ccnsync.OnResponseFunc) func() {
	p := &pendingInterest{name: name, onResponse: onResponse}
	t.mu.Lock()
	t.pending = append(t.pending, p)
	t.mu.Unlock()

	exclude := make([][]byte, len(tmpl.Exclude))
	for i, h := range tmpl.Exclude {
		exclude[i] = h.Bytes()
	}
	t.broadcast(wireFrame{
		Kind:      frameInterest,
		NameParts: [][]byte(name),
		Exclude:   exclude,
	})

	return func() {
		p.cancelled.Store(true)
		t.mu.Lock()
		for i, q := range t.pending {
			if q == p {
				t.pending = append(t.pending[:i], t.pending[i+1:]...)
				break
			}
		}
		t.mu.Unlock()
	}
}

// SetInterestFilter registers a responder for inbound interests whose
// name has the given prefix.
func (t *Transport) SetInterestFilter(prefix ccnsync.Name, onInterest ccnsync.OnInterestFunc) func() {
	t.mu.Lock()
	entry := filterEntry{prefix: prefix, onInterest: onInterest}
	t.filters = append(t.filters, entry)
	idx := len(t.filters) - 1
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if idx < len(t.filters) && &t.filters[idx] == &entry {
			t.filters = append(t.filters[:idx], t.filters[idx+1:]...)
		}
	}
}

// Put publishes a response content object, broadcast to every peer
// since the sender side doesn't track which specific peer's interest
// prompted it — any peer holding a matching pending interest accepts
// it, which is exactly the content-addressed dispatch spec.md §4.H
// describes for NodeFetch/ContentFetch responders.
func (t *Transport) Put(obj ccnsync.ContentObject) error {
	t.broadcast(wireFrame{
		Kind:      frameContent,
		NameParts: [][]byte(obj.Name),
		Body:      obj.Body,
		Final:     true,
	})
	return nil
}
