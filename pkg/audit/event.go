// Package audit records route transitions to a JSON-lines journal.
package audit

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/newtron-network/vnetorch/pkg/vnet"
)

// Event is one recorded route transition.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	VNet      string    `json:"vnet"`
	Prefix    string    `json:"prefix"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Active    []string  `json:"active,omitempty"`
	Target    string    `json:"target,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Filter defines criteria for querying events
type Filter struct {
	VNet        string
	Prefix      string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	// Newest orders results newest first before Offset and Limit apply.
	Newest bool
	Limit  int
	Offset int
}

// NewEvent converts a reconciler transition.
func NewEvent(t vnet.Transition) *Event {
	e := &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		VNet:      t.Route.VNet,
		Prefix:    t.Route.Prefix.String(),
		From:      t.From.String(),
		To:        t.To.String(),
		Active:    t.Active,
		Target:    t.Target,
		Reason:    t.Reason,
		Success:   t.Err == nil,
	}
	if t.Err != nil {
		e.Error = t.Err.Error()
	}
	return e
}

// Route returns "vnet|prefix".
func (e *Event) Route() string {
	return e.VNet + "|" + e.Prefix
}

var idSeq atomic.Uint64

// generateID returns a unique, time-ordered id. The sequence breaks ties
// between events recorded within the same nanosecond.
func generateID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), idSeq.Add(1))
}
