package dlep

// PeerData is the local (our-own) and remote (peer-advertised) session-level
// data item store, grounded on original_source/InfoBaseMgr.h's PeerData: the
// same shape as Destination but scoped to the session rather than a single
// destination, and carried on Session_Initialization(_Response) and
// Session_Update(_Response) instead of Destination_Up/Update.
type PeerData struct {
	metrics map[DataItemID]DataItem
	ips     []DataItem

	// declaredMetrics is the set of metric ids this peer itself declared
	// during its Session_Initialization(_Response), grounded on
	// original_source/InfoBaseMgr.cpp:PeerData::update_data_items, which
	// checks metric_data_items.find(di.id) against the peer's own stored
	// map rather than the catalogue. Session_Update batches may only name
	// ids already in this set (spec.md §3, §4.1; §8 Scenario 2).
	declaredMetrics map[DataItemID]struct{}
}

// newPeerData constructs an empty PeerData.
func newPeerData() *PeerData {
	return &PeerData{
		metrics:         make(map[DataItemID]DataItem),
		declaredMetrics: make(map[DataItemID]struct{}),
	}
}

// updateMetrics replaces each metric data item by id, the session-level
// analogue of Destination.updateMetrics.
func (p *PeerData) updateMetrics(items []DataItem) {
	for _, item := range items {
		p.metrics[item.ID] = item
	}
}

// declareMetrics records the metric ids present in items as this peer's
// declared set. Called once, with the handshake's own item batch, by
// InformationBase.UpdatePeerItems the first time it runs for a peer.
func (p *PeerData) declareMetrics(items []DataItem) {
	for _, item := range items {
		p.declaredMetrics[item.ID] = struct{}{}
	}
}

// DeclaredMetric reports whether id is in this peer's declared-metrics set.
func (p *PeerData) DeclaredMetric(id DataItemID) bool {
	_, ok := p.declaredMetrics[id]
	return ok
}

// applyIP reconciles a single IP-address data item against this peer's IP
// list.
func (p *PeerData) applyIP(item DataItem) bool {
	list, changed := applyIPUpdate(p.ips, item)
	p.ips = list
	return changed
}

// AllDataItems returns a snapshot of every session-level data item: metrics
// followed by IP-address items, matching
// original_source/InfoBaseMgr.h:PeerData::get_data_items.
func (p *PeerData) AllDataItems() []DataItem {
	out := make([]DataItem, 0, len(p.metrics)+len(p.ips))
	for _, item := range p.metrics {
		out = append(out, item)
	}
	out = append(out, p.ips...)
	return out
}

// IPs returns a snapshot of this peer's current session-level IP-address
// data items.
func (p *PeerData) IPs() []DataItem {
	out := make([]DataItem, len(p.ips))
	copy(out, p.ips)
	return out
}

// Metric returns the current value of the session-level metric with the
// given id, if any.
func (p *PeerData) Metric(id DataItemID) (DataItem, bool) {
	item, ok := p.metrics[id]
	return item, ok
}
