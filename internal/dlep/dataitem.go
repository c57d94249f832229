package dlep

import (
	"fmt"
	"net/netip"
)

// Mac is a 6-byte link-layer address identifying a Destination.
type Mac [6]byte

// String renders the MAC in colon-separated hex, e.g. "aa:bb:cc:00:00:01".
func (m Mac) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// zeroMac is the sentinel MAC used for session-level (non-destination)
// transaction queue entries (spec.md §4.3).
var zeroMac Mac

// IPOp is the add/remove flag carried by an IP-address data item.
type IPOp uint8

const (
	// IPAdd requests that the address be added to the owner's IP list.
	IPAdd IPOp = iota
	// IPRemove requests that the address be removed from the owner's IP list.
	IPRemove
)

// String returns the human-readable name of the IP operation.
func (op IPOp) String() string {
	if op == IPRemove {
		return "remove"
	}
	return "add"
}

// DataItem is a tagged value exchanged on the wire and stored in the
// Information Base (spec.md §3). IP-address data items additionally carry
// an add/remove flag and the address, optionally with a prefix length.
//
// The wire encoding of Value is delegated to a Codec collaborator
// (spec.md §9); this type only carries what the session core needs to
// reason about: identity, classification, and (for IP items) the address.
type DataItem struct {
	// ID names the data item type; its classification is looked up via
	// ProtocolConfig, never stored redundantly here (DESIGN NOTES).
	ID DataItemID

	// Value is the raw, codec-opaque payload for non-IP data items.
	Value []byte

	// Op is meaningful only when this item is an IP-address item.
	Op IPOp

	// Addr is the IP address, valid only when this item is an IP-address
	// item.
	Addr netip.Addr

	// PrefixLen is the prefix length in bits, or -1 if the address is a
	// host address with no associated prefix.
	PrefixLen int
}

// IPEqual reports whether d and other name the same IP address and prefix
// length. Per spec.md §3: "An IP address (exact value, including prefix
// length) appears in at most one place"; equality is defined on the value,
// not on the data item id (an IPv4 item and an IPv6 item never compare
// equal because their Addr values differ in family).
func (d DataItem) IPEqual(other DataItem) bool {
	return d.Addr == other.Addr && d.PrefixLen == other.PrefixLen
}

// ipKey returns a comparable map key for d's address, used by the
// Information Base's global IP-uniqueness index.
func (d DataItem) ipKey() string {
	return fmt.Sprintf("%s/%d", d.Addr.String(), d.PrefixLen)
}

// String renders an IP data item for logs, e.g. "10.0.0.5/32 add".
func (d DataItem) String() string {
	if d.Addr.IsValid() {
		return fmt.Sprintf("%s/%d %s", d.Addr, d.PrefixLen, d.Op)
	}
	return fmt.Sprintf("data-item(id=%d)", d.ID)
}

// applyIPUpdate reconciles an incoming add/remove IP data item against an
// existing ordered list, per spec.md §4.1's IP add/remove rule.
//
// Grounded on original_source/InfoBaseMgr.cpp's free-standing
// update_ip_data_items: if the address already appears in the list, a
// remove deletes it and an add is a no-op (idempotent); otherwise an add
// appends it and a remove is a no-op (the caller decides whether that
// no-op should be surfaced as an error — see InformationBase.removeIP).
//
// Returns the new list and whether the list actually changed.
func applyIPUpdate(list []DataItem, item DataItem) ([]DataItem, bool) {
	for i, existing := range list {
		if existing.IPEqual(item) {
			if item.Op == IPRemove {
				out := make([]DataItem, 0, len(list)-1)
				out = append(out, list[:i]...)
				out = append(out, list[i+1:]...)
				return out, true
			}
			// Already present, adding again is idempotent.
			return list, false
		}
	}

	if item.Op == IPAdd {
		out := make([]DataItem, len(list), len(list)+1)
		copy(out, list)
		return append(out, item), true
	}

	// Removing an address that isn't present is a no-op at this layer.
	return list, false
}
