package ccnsync

// ropPrefix builds the `topo / verb / slice_hash` prefix a responder
// registers a filter for, spec.md §4.H/§6.
func ropPrefix(topo Name, verb Verb, sliceHash Hash) Name {
	out := append(Name{}, topo...)
	return append(out, []byte(verb.String()), sliceHash.Bytes())
}

// onRootAdviseInterest answers "I currently believe my root hash is
// peer_hash; advise me." A responder whose own hash is excluded (i.e.
// matches the sender's belief or is in the sender's covered set)
// suppresses the response; otherwise it serves its current root node,
// spec.md §4.H.
func (e *Engine) onRootAdviseInterest(r *Root, name Name, exclude []Hash) {
	if r.CurrentHash.IsZero() {
		return
	}
	for _, h := range exclude {
		if h == r.CurrentHash {
			return
		}
	}
	entry := e.cache.lookup(r.CurrentHash)
	if entry == nil {
		return
	}
	node, err := e.cache.fetch(entry)
	if err != nil || node == nil {
		return
	}
	enc, err := node.Encode()
	if err != nil {
		return
	}
	respName := append(append(Name{}, name...), r.CurrentHash.Bytes())
	_ = e.transport.Put(ContentObject{Name: respName, Body: enc})
}

// onNodeFetchInterest answers a content-addressed NodeFetch: any
// responder holding the node may reply, spec.md §4.H.
func (e *Engine) onNodeFetchInterest(r *Root, name Name) {
	if len(name) == 0 {
		return
	}
	var h Hash
	last := name[len(name)-1]
	if len(last) != HashSize {
		return
	}
	copy(h[:], last)
	entry := e.cache.lookup(h)
	if entry == nil {
		return
	}
	node, err := e.cache.fetch(entry)
	if err != nil || node == nil {
		return
	}
	enc, err := node.Encode()
	if err != nil {
		return
	}
	_ = e.transport.Put(ContentObject{Name: name, Body: enc})
}

// onRootStatsInterest answers with the plain-text key/value RootStats
// snapshot, spec.md §4.H/§6.
func (e *Engine) onRootStatsInterest(r *Root, name Name) {
	body := renderRootStatsText(snapshotStats(r))
	_ = e.transport.Put(ContentObject{Name: name, Body: body})
}

// issueRootAdvise sends a RootAdvise interest for r, excluding r's own
// current hash and every hash already known covered.
func (e *Engine) issueRootAdvise(r *Root) {
	excl := r.excluded.sorted()
	excl = append(excl, r.CurrentHash)
	name := RootAdviseName(r.Config.TopoPrefix, r.SliceHash, nil)
	e.transport.ExpressInterest(name, InterestTemplate{Exclude: excl}, func(ev ResponseEvent) {
		e.post(func() { e.onRootAdviseResponse(r, ev) })
	})
	r.LastAdvise = e.clock.Now()
}

// onRootAdviseResponse records a peer's advertised root hash into
// remote_seen, unless it equals the local hash, spec.md §4.H. Peers
// already known covered are still recorded; firstUncoveredPeer skips
// them.
func (e *Engine) onRootAdviseResponse(r *Root, ev ResponseEvent) {
	if ev.Content == nil || ev.Timeout {
		return
	}
	// unverified responses are treated as success per spec.md §9 Open
	// Question 1 — see DESIGN.md.
	name := ev.Content.Name
	if len(name) == 0 {
		return
	}
	last := name[len(name)-1]
	if len(last) != HashSize {
		return
	}
	var peerHash Hash
	copy(peerHash[:], last)
	if peerHash == r.CurrentHash {
		return
	}
	entry := e.cache.lookup(peerHash)
	if entry == nil || entry.RemoteNode == nil {
		node, err := DecodeNode(ev.Content.Body)
		if err == nil {
			e.cache.completeFromWire(peerHash, ev.Content.Body, node)
		}
	}
	if !r.remoteSeen.Contains(peerHash) {
		r.remoteSeen.Add(peerHash)
	}
}
