package models

import "encoding/json"

// Event is a push notification for one run: either a Result transition
// (Index set) or the terminal completion signal (Done set).
type Event struct {
	Index            *int     `json:"index,omitempty"`
	Status           Status   `json:"status,omitempty"`
	Model            string   `json:"model,omitempty"`
	Output           string   `json:"output,omitempty"`
	StructuredOutput any      `json:"structuredOutput,omitempty"`
	TokensIn         int      `json:"tokensIn,omitempty"`
	TokensOut        int      `json:"tokensOut,omitempty"`
	LatencyMs        int64    `json:"latencyMs,omitempty"`
	Cost             *float64 `json:"cost,omitempty"`
	Error            string   `json:"error,omitempty"`
	Done             bool     `json:"done,omitempty"`
}

// completedEvent is the wire form of a completed Result transition. Every
// result field is present, zero or not.
type completedEvent struct {
	Index            *int     `json:"index"`
	Status           Status   `json:"status"`
	Model            string   `json:"model"`
	Output           string   `json:"output"`
	StructuredOutput any      `json:"structuredOutput"`
	TokensIn         int      `json:"tokensIn"`
	TokensOut        int      `json:"tokensOut"`
	LatencyMs        int64    `json:"latencyMs"`
	Cost             *float64 `json:"cost"`
}

// MarshalJSON omits unset fields, except on completed transitions, which
// always carry the full result payload.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Index != nil && e.Status == StatusCompleted {
		return json.Marshal(completedEvent{
			Index:            e.Index,
			Status:           e.Status,
			Model:            e.Model,
			Output:           e.Output,
			StructuredOutput: e.StructuredOutput,
			TokensIn:         e.TokensIn,
			TokensOut:        e.TokensOut,
			LatencyMs:        e.LatencyMs,
			Cost:             e.Cost,
		})
	}

	type plain Event
	return json.Marshal(plain(e))
}

// ProgressEvent describes the state of result i.
func ProgressEvent(i int, r Result) Event {
	idx := i
	evt := Event{
		Index:  &idx,
		Status: r.Status,
		Model:  r.Model,
	}

	switch r.Status {
	case StatusCompleted:
		evt.Output = r.Output
		evt.StructuredOutput = r.StructuredOutput
		evt.TokensIn = r.TokensIn
		evt.TokensOut = r.TokensOut
		evt.LatencyMs = r.LatencyMs
		evt.Cost = r.Cost
	case StatusFailed:
		evt.Error = r.Error
	}
	return evt
}

// DoneEvent is the terminal event of a run. errMsg is only set when the run
// could not be driven to completion (for example the store went away).
func DoneEvent(errMsg string) Event {
	return Event{Done: true, Error: errMsg}
}
