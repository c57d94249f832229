package dlep

import "errors"

// Status is the outcome code carried by a Status data item on responses
// (spec.md §3, §7).
type Status uint8

const (
	// StatusSuccess indicates the request was accepted.
	StatusSuccess Status = iota

	// StatusNotInterested indicates the receiver declines the destination
	// (spec.md §4.2, error kind 3).
	StatusNotInterested

	// StatusInvalidMessage indicates a protocol violation: malformed
	// signal, unexpected signal for the state, or an undeclared metric
	// (spec.md §7, error kind 2).
	StatusInvalidMessage

	// StatusIPConflict indicates an IP-address data item collided with
	// one already owned elsewhere (spec.md §9, Open Question 2).
	StatusIPConflict

	// StatusUnknownDestination indicates an operation named a MAC the
	// peer has no record of (spec.md §7, error kind 5).
	StatusUnknownDestination

	// StatusTimedOut indicates the peer's retransmission budget or
	// liveness deadline was exhausted (spec.md §7, error kind 4).
	StatusTimedOut

	// StatusRequestDenied is a catch-all rejection for local invariant
	// violations not covered by a more specific status (spec.md §7, error
	// kind 5).
	StatusRequestDenied
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusNotInterested:
		return "Not_Interested"
	case StatusInvalidMessage:
		return "Invalid_Message"
	case StatusIPConflict:
		return "IP_Conflict"
	case StatusUnknownDestination:
		return "Unknown_Destination"
	case StatusTimedOut:
		return "Timed_Out"
	default:
		return "Request_Denied"
	}
}

// statusItem builds the Status data item to carry on a response.
func statusItem(cat ProtocolConfig, status Status) DataItem {
	return DataItem{ID: cat.StatusDataItemID(), Value: []byte{byte(status)}}
}

// statusOf extracts the Status code from a response's item list. A list
// with no Status item yields StatusSuccess.
func statusOf(cat ProtocolConfig, items []DataItem) Status {
	id := cat.StatusDataItemID()
	for _, item := range items {
		if item.ID == id && len(item.Value) > 0 {
			return Status(item.Value[0])
		}
	}
	return StatusSuccess
}

// responseIsSuccess reports whether items carries a Success status.
func responseIsSuccess(cat ProtocolConfig, items []DataItem) bool {
	return statusOf(cat, items) == StatusSuccess
}

// statusFor maps an internal error to the wire Status code it should be
// reported as on Session_Termination.
func statusFor(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrTimedOut):
		return StatusTimedOut
	case errors.Is(err, ErrIPConflict):
		return StatusIPConflict
	case errors.Is(err, ErrUnknownDestination):
		return StatusUnknownDestination
	case errors.Is(err, ErrNotInSession), errors.Is(err, ErrUnexpectedResponse), errors.Is(err, ErrInvalidMetric):
		return StatusInvalidMessage
	default:
		return StatusRequestDenied
	}
}
