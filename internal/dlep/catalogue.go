package dlep

import "time"

// DataItemKind classifies a data item id for the purposes of the
// Information Base and the whitelist/reconciliation rules of §4.1.
//
// Grounded on original_source/InfoBaseMgr.h's protocfg->is_metric(id) /
// protocfg->is_ipaddr(id) calls: the catalogue, not the data item itself,
// carries this classification (DESIGN NOTES: "do not encode these in the
// type system of data items").
type DataItemKind uint8

const (
	// KindOther is any data item that is neither a metric, an IP address,
	// nor a status code (e.g. peer type, experiment names).
	KindOther DataItemKind = iota

	// KindMetric is a link-quality metric (bandwidth, latency, RLQ, ...).
	KindMetric

	// KindIPAddress is an IPv4/IPv6 address or prefix data item.
	KindIPAddress

	// KindStatus is the Status data item carried on responses.
	KindStatus
)

// String returns the human-readable name of the kind.
func (k DataItemKind) String() string {
	switch k {
	case KindMetric:
		return "Metric"
	case KindIPAddress:
		return "IPAddress"
	case KindStatus:
		return "Status"
	default:
		return "Other"
	}
}

// SignalID identifies a DLEP signal type. The concrete numeric values are
// supplied by the catalogue; the core never hard-codes them (spec.md §6).
type SignalID uint16

// DataItemID identifies a data item type. Concrete numeric values come
// from the catalogue.
type DataItemID uint16

// ExtensionID names an optional protocol capability.
type ExtensionID uint16

// Well-known signal names used for logging, ResponsePending tracking, and
// handler routing keys. These are catalogue-independent label strings, not
// wire values — the wire SignalID for each is looked up via
// ProtocolConfig.SignalID.
const (
	SigSessionInitialization         = "Session_Initialization"
	SigSessionInitializationResponse = "Session_Initialization_Response"
	SigSessionUpdate                 = "Session_Update"
	SigSessionUpdateResponse         = "Session_Update_Response"
	SigSessionTermination            = "Session_Termination"
	SigSessionTerminationResponse    = "Session_Termination_Response"
	SigDestinationUp                 = "Destination_Up"
	SigDestinationUpResponse         = "Destination_Up_Response"
	SigDestinationUpdate             = "Destination_Update"
	SigDestinationDown               = "Destination_Down"
	SigDestinationDownResponse       = "Destination_Down_Response"
	SigDestinationAnnounce           = "Destination_Announce"
	SigDestinationAnnounceResponse   = "Destination_Announce_Response"
	SigLinkCharacteristicsRequest    = "Link_Characteristics_Request"
	SigLinkCharacteristicsResponse   = "Link_Characteristics_Response"
	SigHeartbeat                    = "Heartbeat"
)

// ProtocolConfig is the read-only metric/signal/data-item catalogue,
// immutable after initialization (spec.md §3). The real catalogue is
// parsed from an XML protocol-definition document, which is an external
// collaborator (spec.md §1); the core only ever reads through this
// interface.
type ProtocolConfig interface {
	// DataItemKind classifies a data item id.
	DataItemKind(id DataItemID) DataItemKind

	// Declared reports whether the catalogue has an explicit entry for
	// id. An id with no entry classifies as KindOther via DataItemKind
	// but is distinguishable here, so validation can reject a metric
	// update that names an id the catalogue never declared (spec.md §9,
	// Open Question 1) instead of silently accepting it as opaque.
	Declared(id DataItemID) bool

	// SignalID looks up the wire signal id for a catalogue signal name.
	// ok is false if the catalogue does not define that signal.
	SignalID(name string) (id SignalID, ok bool)

	// SignalName is the inverse of SignalID, used for logging and routing.
	SignalName(id SignalID) (name string, ok bool)

	// HeartbeatUnit returns the duration represented by one unit of the
	// wire heartbeat-interval field (e.g. one millisecond).
	HeartbeatUnit() time.Duration

	// DefaultRetryInterval is the catalogue's default per-request
	// retransmit interval (spec.md §4.3). Peer does not read it; its retry
	// interval comes from PeerConfig.RetryInterval.
	DefaultRetryInterval() time.Duration

	// DefaultMaxRetries is the default retransmit budget before a peer is
	// terminated with Timed_Out (spec.md §4.3).
	DefaultMaxRetries() int

	// MissedHeartbeatThreshold is the catalogue's default detection
	// multiplier for the peer's heartbeat interval (spec.md §4.4). The
	// acktivity timer does not read it; it uses
	// PeerConfig.MissedHeartbeatThreshold.
	MissedHeartbeatThreshold() int

	// StatusDataItemID is the data item id used to carry a Status code on
	// responses (spec.md §3: "a Status data item").
	StatusDataItemID() DataItemID

	// MacDataItemID is the data item id used to carry the destination MAC
	// address on destination-scoped signals.
	MacDataItemID() DataItemID

	// ExtensionDataItemID is the data item id used to carry a supported
	// extension id on Session_Initialization(_Response) (spec.md §4.2:
	// "its supported extension ids").
	ExtensionDataItemID() DataItemID

	// HeartbeatDataItemID is the data item id used to carry the peer's
	// heartbeat interval, in HeartbeatUnit units, on
	// Session_Initialization(_Response) (spec.md §4.2, §4.4).
	HeartbeatDataItemID() DataItemID
}

// StaticCatalogue is a fixed, in-memory ProtocolConfig used for tests and
// for demo wiring (cmd/dlep-session). A production deployment replaces it
// with the result of parsing the DLEP XML protocol-definition document.
type StaticCatalogue struct {
	Kinds                    map[DataItemID]DataItemKind
	Signals                  map[string]SignalID
	HeartbeatUnitDuration    time.Duration
	RetryInterval            time.Duration
	MaxRetries               int
	HeartbeatMissedThreshold int
	StatusItemID             DataItemID
	MacItemID                DataItemID
	ExtensionItemID          DataItemID
	HeartbeatItemID          DataItemID
}

var _ ProtocolConfig = (*StaticCatalogue)(nil)

// NewStaticCatalogue builds a StaticCatalogue with the conventional DLEP
// signal-name-to-id table and sensible defaults. Callers may mutate the
// returned value's maps before first use to add metric/IP data-item ids.
func NewStaticCatalogue() *StaticCatalogue {
	c := &StaticCatalogue{
		Kinds: map[DataItemID]DataItemKind{
			1: KindStatus,
			2: KindOther,
			3: KindOther,
			4: KindOther,
		},
		Signals: map[string]SignalID{
			SigSessionInitialization:         1,
			SigSessionInitializationResponse: 2,
			SigSessionUpdate:                 3,
			SigSessionUpdateResponse:         4,
			SigSessionTermination:            5,
			SigSessionTerminationResponse:    6,
			SigDestinationUp:                 7,
			SigDestinationUpResponse:         8,
			SigDestinationUpdate:             9,
			SigDestinationDown:               10,
			SigDestinationDownResponse:       11,
			SigDestinationAnnounce:           12,
			SigDestinationAnnounceResponse:   13,
			SigLinkCharacteristicsRequest:    14,
			SigLinkCharacteristicsResponse:   15,
			SigHeartbeat:                    16,
		},
		HeartbeatUnitDuration:    time.Millisecond,
		RetryInterval:            1 * time.Second,
		MaxRetries:               3,
		HeartbeatMissedThreshold: 4,
		StatusItemID:             1,
		MacItemID:                2,
		ExtensionItemID:          3,
		HeartbeatItemID:          4,
	}
	return c
}

// DataItemKind implements ProtocolConfig.
func (c *StaticCatalogue) DataItemKind(id DataItemID) DataItemKind {
	if k, ok := c.Kinds[id]; ok {
		return k
	}
	return KindOther
}

// StatusDataItemID implements ProtocolConfig.
func (c *StaticCatalogue) StatusDataItemID() DataItemID { return c.StatusItemID }

// MacDataItemID implements ProtocolConfig.
func (c *StaticCatalogue) MacDataItemID() DataItemID { return c.MacItemID }

// ExtensionDataItemID implements ProtocolConfig.
func (c *StaticCatalogue) ExtensionDataItemID() DataItemID { return c.ExtensionItemID }

// HeartbeatDataItemID implements ProtocolConfig.
func (c *StaticCatalogue) HeartbeatDataItemID() DataItemID { return c.HeartbeatItemID }

// Declared implements ProtocolConfig.
func (c *StaticCatalogue) Declared(id DataItemID) bool {
	_, ok := c.Kinds[id]
	return ok
}

// SignalID implements ProtocolConfig.
func (c *StaticCatalogue) SignalID(name string) (SignalID, bool) {
	id, ok := c.Signals[name]
	return id, ok
}

// SignalName implements ProtocolConfig.
func (c *StaticCatalogue) SignalName(id SignalID) (string, bool) {
	for name, sid := range c.Signals {
		if sid == id {
			return name, true
		}
	}
	return "", false
}

// HeartbeatUnit implements ProtocolConfig.
func (c *StaticCatalogue) HeartbeatUnit() time.Duration { return c.HeartbeatUnitDuration }

// DefaultRetryInterval implements ProtocolConfig.
func (c *StaticCatalogue) DefaultRetryInterval() time.Duration { return c.RetryInterval }

// DefaultMaxRetries implements ProtocolConfig.
func (c *StaticCatalogue) DefaultMaxRetries() int { return c.MaxRetries }

// MissedHeartbeatThreshold implements ProtocolConfig.
func (c *StaticCatalogue) MissedHeartbeatThreshold() int { return c.HeartbeatMissedThreshold }

// WithMetric marks id as a metric data item and returns the catalogue for
// chaining.
func (c *StaticCatalogue) WithMetric(id DataItemID) *StaticCatalogue {
	c.Kinds[id] = KindMetric
	return c
}

// WithIPAddress marks id as an IP-address data item and returns the
// catalogue for chaining.
func (c *StaticCatalogue) WithIPAddress(id DataItemID) *StaticCatalogue {
	c.Kinds[id] = KindIPAddress
	return c
}

// WithStatus marks id as the Status data item and returns the catalogue
// for chaining.
func (c *StaticCatalogue) WithStatus(id DataItemID) *StaticCatalogue {
	c.Kinds[id] = KindStatus
	return c
}
