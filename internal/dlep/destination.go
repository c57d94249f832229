package dlep

// Destination is the per-MAC record an Information Base keeps for a peer's
// advertised destination (spec.md §3), grounded on
// original_source/InfoBaseMgr.h's DestinationData.
type Destination struct {
	// Mac is the link-layer address identifying this destination. It never
	// changes after creation.
	Mac Mac

	// metrics holds the non-IP data items currently advertised for this
	// destination, keyed by id so a later update replaces rather than
	// duplicates (spec.md §4.1: "a later metric update for the same id
	// replaces the earlier value").
	metrics map[DataItemID]DataItem

	// ips is the ordered list of IP-address data items currently
	// associated with this destination.
	ips []DataItem
}

// newDestination constructs an empty Destination for mac.
func newDestination(mac Mac) *Destination {
	return &Destination{
		Mac:     mac,
		metrics: make(map[DataItemID]DataItem),
	}
}

// updateMetrics replaces each metric data item by id. Callers are expected
// to have already validated every id against the catalogue (spec.md §4.1);
// this method never rejects an item.
func (d *Destination) updateMetrics(items []DataItem) {
	for _, item := range items {
		d.metrics[item.ID] = item
	}
}

// applyIP reconciles a single IP-address data item against this
// destination's IP list, returning whether the list changed. The caller
// (InformationBase) is responsible for maintaining the cross-destination
// global IP-uniqueness index; this method only maintains the local list.
func (d *Destination) applyIP(item DataItem) bool {
	list, changed := applyIPUpdate(d.ips, item)
	d.ips = list
	return changed
}

// AllDataItems returns a snapshot of every data item currently associated
// with this destination — metrics followed by IP-address items — in the
// shape Session_Initialization_Response/Destination_Up_Response need to
// serialize the full current state (SPEC_FULL.md §6, grounded on
// original_source/InfoBaseMgr.h's DestinationData::get_all_data_items).
func (d *Destination) AllDataItems() []DataItem {
	out := make([]DataItem, 0, len(d.metrics)+len(d.ips))
	for _, item := range d.metrics {
		out = append(out, item)
	}
	out = append(out, d.ips...)
	return out
}

// IPs returns a snapshot of this destination's current IP-address data
// items.
func (d *Destination) IPs() []DataItem {
	out := make([]DataItem, len(d.ips))
	copy(out, d.ips)
	return out
}

// Metric returns the current value of the metric with the given id, if
// any.
func (d *Destination) Metric(id DataItemID) (DataItem, bool) {
	item, ok := d.metrics[id]
	return item, ok
}
