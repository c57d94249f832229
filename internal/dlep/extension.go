package dlep

import "time"

// extensionDataItems encodes ids as a list of two-byte-id data items, one
// per extension, all sharing cat.ExtensionDataItemID() (spec.md §4.2:
// Session_Initialization(_Response) carries "its supported extension
// ids"). Grounded on original_source/Session.cpp's build_extension_list,
// which likewise emits one data item per supported extension rather than
// packing the whole list into a single value.
func extensionDataItems(cat ProtocolConfig, ids []ExtensionID) []DataItem {
	id := cat.ExtensionDataItemID()
	out := make([]DataItem, 0, len(ids))
	for _, ext := range ids {
		out = append(out, DataItem{ID: id, Value: []byte{byte(ext >> 8), byte(ext)}})
	}
	return out
}

// splitExtensions extracts every extension-id data item from items,
// returning the advertised extension ids and the remaining items
// unchanged in order.
func splitExtensions(cat ProtocolConfig, items []DataItem) ([]ExtensionID, []DataItem) {
	id := cat.ExtensionDataItemID()
	var exts []ExtensionID
	rest := make([]DataItem, 0, len(items))
	for _, item := range items {
		if item.ID == id && len(item.Value) == 2 {
			exts = append(exts, ExtensionID(uint16(item.Value[0])<<8|uint16(item.Value[1])))
			continue
		}
		rest = append(rest, item)
	}
	return exts, rest
}

// heartbeatIntervalItem encodes interval as a two-byte, big-endian count of
// cat.HeartbeatUnit() units (spec.md §4.2, §4.4).
func heartbeatIntervalItem(cat ProtocolConfig, interval time.Duration) DataItem {
	units := uint16(interval / cat.HeartbeatUnit())
	return DataItem{ID: cat.HeartbeatDataItemID(), Value: []byte{byte(units >> 8), byte(units)}}
}

// splitHeartbeatInterval extracts the heartbeat-interval data item from
// items, converting it to a time.Duration via the catalogue's unit factor,
// and returns the remaining items. ok is false if no such item is present.
func splitHeartbeatInterval(cat ProtocolConfig, items []DataItem) (interval time.Duration, rest []DataItem, ok bool) {
	id := cat.HeartbeatDataItemID()
	rest = make([]DataItem, 0, len(items))
	for _, item := range items {
		if item.ID == id && len(item.Value) == 2 && !ok {
			units := uint16(item.Value[0])<<8 | uint16(item.Value[1])
			interval = time.Duration(units) * cat.HeartbeatUnit()
			ok = true
			continue
		}
		rest = append(rest, item)
	}
	return interval, rest, ok
}
