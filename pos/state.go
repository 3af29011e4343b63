package pos

import "time"

// State is the lifecycle position of a gateway instance.
type State int

const (
	StateUnprepared State = iota
	StatePrepared
	StateRequested
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateUnprepared:
		return "unprepared"
	case StatePrepared:
		return "prepared"
	case StateRequested:
		return "requested"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// Flow tracks a single transaction through a gateway façade:
// unprepared → prepared → requested → completed. A new Prepare resets a
// completed flow. Flow is owned by exactly one gateway instance and is not
// safe for concurrent use.
type Flow struct {
	state State
	tx    TxType
	resp  *Response
}

// State returns the current lifecycle position.
func (f *Flow) State() State { return f.state }

// TxType returns the transaction kind set by the last Prepare.
func (f *Flow) TxType() TxType { return f.tx }

// Require returns a StateError unless the flow is in one of the allowed
// states.
func (f *Flow) Require(op string, allowed ...State) error {
	for _, s := range allowed {
		if f.state == s {
			return nil
		}
	}
	return &StateError{Op: op, State: f.state}
}

// SetPrepared moves the flow into the prepared state, replacing any
// previous transaction context.
func (f *Flow) SetPrepared(tx TxType) {
	f.state = StatePrepared
	f.tx = tx
	f.resp = nil
}

// SetRequested marks the wire request as sent.
func (f *Flow) SetRequested() {
	f.state = StateRequested
}

// Complete stores the normalized result and finishes the flow.
func (f *Flow) Complete(resp *Response) {
	if resp.SystemTime == nil {
		now := time.Now()
		resp.SystemTime = &now
	}
	f.resp = resp
	f.state = StateCompleted
}

// Response returns the stored result; calling it before completion is a
// StateError.
func (f *Flow) Response() (*Response, error) {
	if err := f.Require("Response", StateCompleted); err != nil {
		return nil, err
	}
	return f.resp, nil
}

// IsSuccess reports whether the completed transaction was approved.
// It is false in every other state.
func (f *Flow) IsSuccess() bool {
	return f.state == StateCompleted && f.resp != nil && f.resp.Success
}

// IsError is the inverse of IsSuccess for a completed flow.
func (f *Flow) IsError() bool {
	return !f.IsSuccess()
}
