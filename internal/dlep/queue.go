package dlep

import (
	"fmt"
	"time"
)

// PendingRequest is an in-flight request awaiting a response, grounded on
// original_source/Peer.h's ResponsePending: it tracks the expected
// response's signal and MAC, the serialized bytes needed to retransmit,
// and the retransmission bookkeeping (spec.md §4.3).
type PendingRequest struct {
	// Signal names the request for logging, e.g. "Destination_Up".
	Signal string

	// ResponseSignal names the response this request expects.
	ResponseSignal string

	// Mac is the destination this request concerns, or the session-level
	// sentinel zeroMac.
	Mac Mac

	// Wire is the serialized outbound bytes, retained so a retransmit
	// does not need to re-encode the message.
	Wire []byte

	// Queued reports whether this request has been handed to the
	// transaction queue (always true once constructed here; preserved as
	// a distinct field from Transmitted to match the original's
	// queued-vs-transmitted distinction, SPEC_FULL.md §6).
	Queued bool

	// Transmitted reports whether this request has been written to the
	// wire at least once. A request sitting behind the queue head is
	// Queued but not yet Transmitted.
	Transmitted bool

	// SendTime is the timestamp of the most recent transmission.
	SendTime time.Time

	// Tries is the number of times this request has been transmitted.
	Tries int
}

// String renders p for structured log attributes, matching the original's
// ResponsePending::queue_name convention (SPEC_FULL.md §6).
func (p *PendingRequest) String() string {
	if p.Mac == zeroMac {
		return fmt.Sprintf("session:%s", p.Signal)
	}
	return fmt.Sprintf("%s:%s", p.Mac, p.Signal)
}

// TransactionQueue is the per-peer map of MAC to FIFO of PendingRequest,
// enforcing the at-most-one-in-flight-per-MAC invariant of spec.md §4.3.
// Grounded on original_source/Peer.h's responses_pending
// (map<DlepMac, queue<ResponsePendingPtr>>).
type TransactionQueue struct {
	clock  Clock
	queues map[Mac][]*PendingRequest
}

// NewTransactionQueue constructs an empty TransactionQueue driven by clock.
func NewTransactionQueue(clock Clock) *TransactionQueue {
	return &TransactionQueue{
		clock:  clock,
		queues: make(map[Mac][]*PendingRequest),
	}
}

// Enqueue appends req to its MAC's FIFO. If req reaches the head of an
// empty queue it is transmitted immediately via send and marked
// Transmitted; otherwise it waits (spec.md §4.3: "Enqueueing when the
// queue is non-empty only stores the request; it is transmitted when it
// reaches the head").
func (q *TransactionQueue) Enqueue(req *PendingRequest, send func(wire []byte) error) error {
	req.Queued = true
	queue := q.queues[req.Mac]
	q.queues[req.Mac] = append(queue, req)
	if len(queue) == 0 {
		return q.transmitHead(req, send)
	}
	return nil
}

func (q *TransactionQueue) transmitHead(req *PendingRequest, send func(wire []byte) error) error {
	if err := send(req.Wire); err != nil {
		return err
	}
	req.Transmitted = true
	req.SendTime = q.clock.Now()
	req.Tries++
	return nil
}

// MatchResponse matches an inbound response against the head of mac's
// queue. On a match, the head is removed and, if another request is now
// at the head, it is transmitted via send. A mismatch (wrong signal, or no
// request outstanding for mac) returns ErrUnexpectedResponse, which the
// caller escalates to a protocol violation (spec.md §9, Open Question 3).
func (q *TransactionQueue) MatchResponse(mac Mac, responseSignal string, send func(wire []byte) error) (*PendingRequest, error) {
	queue := q.queues[mac]
	if len(queue) == 0 || !queue[0].Transmitted {
		return nil, fmt.Errorf("match response %s for %s: %w", responseSignal, mac, ErrUnexpectedResponse)
	}
	head := queue[0]
	if head.ResponseSignal != responseSignal {
		return nil, fmt.Errorf("match response: expected %s, got %s: %w", head.ResponseSignal, responseSignal, ErrUnexpectedResponse)
	}
	rest := queue[1:]
	if len(rest) == 0 {
		delete(q.queues, mac)
	} else {
		q.queues[mac] = rest
		if err := q.transmitHead(rest[0], send); err != nil {
			return head, err
		}
	}
	return head, nil
}

// RetransmitSweepResult reports the outcome of one acktivity-timer pass
// over every queue head (spec.md §4.4).
type RetransmitSweepResult struct {
	// Retransmitted lists every request that was retransmitted this
	// sweep.
	Retransmitted []*PendingRequest

	// TimedOut is non-nil if a request exhausted its retry budget; the
	// peer must be terminated with a Timed_Out status.
	TimedOut *PendingRequest
}

// Sweep walks every queue head, retransmitting any that have been
// outstanding for at least retryInterval and have tries remaining, and
// reports the first head (if any) that has exhausted maxRetries (spec.md
// §4.3's retransmission rule).
func (q *TransactionQueue) Sweep(retryInterval time.Duration, maxRetries int, send func(wire []byte) error) (RetransmitSweepResult, error) {
	var result RetransmitSweepResult
	now := q.clock.Now()
	for _, queue := range q.queues {
		if len(queue) == 0 || !queue[0].Transmitted {
			continue
		}
		head := queue[0]
		if now.Sub(head.SendTime) < retryInterval {
			continue
		}
		if head.Tries > maxRetries {
			result.TimedOut = head
			return result, nil
		}
		if err := send(head.Wire); err != nil {
			return result, err
		}
		head.SendTime = now
		head.Tries++
		result.Retransmitted = append(result.Retransmitted, head)
	}
	return result, nil
}

// Len returns the number of pending requests queued for mac.
func (q *TransactionQueue) Len(mac Mac) int {
	return len(q.queues[mac])
}

// Drain removes every queued request for every MAC, returning them for the
// caller to fail out (used on peer termination, spec.md §5: "the FSM
// collapses all outstanding queues and timers when entering terminating").
func (q *TransactionQueue) Drain() []*PendingRequest {
	var out []*PendingRequest
	for mac, queue := range q.queues {
		out = append(out, queue...)
		delete(q.queues, mac)
	}
	return out
}
