package vnet

import (
	"fmt"
	"sort"

	"github.com/newtron-network/vnetorch/pkg/util"
)

type session struct {
	cfg      SessionConfig // as programmed
	reported Liveness
	routes   map[RouteKey]SessionConfig
}

// owner returns the configuration wanted by the session's owner, the lowest
// referencing route.
func (s *session) owner() SessionConfig {
	var owner RouteKey
	first := true
	for r := range s.routes {
		if first || r.Less(owner) {
			owner, first = r, false
		}
	}
	return s.routes[owner]
}

// HealthTracker owns monitor sessions and their liveness. Sessions are
// reference-counted by the routes that use them. A session shared by
// routes with different settings is programmed with the settings of its
// lowest route.
type HealthTracker struct {
	sink     MonitorSink
	sessions map[MonitorKey]*session
	tsa      bool
}

// NewHealthTracker creates a tracker that programs sessions through sink.
func NewHealthTracker(sink MonitorSink) *HealthTracker {
	return &HealthTracker{
		sink:     sink,
		sessions: make(map[MonitorKey]*session),
	}
}

// Ref adds route as a user of the session cfg.Key, creating the session on
// first use. The session is rewritten when its owner's configuration
// changes.
func (h *HealthTracker) Ref(route RouteKey, cfg SessionConfig) error {
	s, ok := h.sessions[cfg.Key]
	if !ok {
		if err := h.sink.SetSession(cfg); err != nil {
			return fmt.Errorf("creating monitor session %s: %w", cfg.Key, err)
		}
		util.WithEndpoint(cfg.Key.Addr.String()).Debugf("monitor session %s created", cfg.Key)
		h.sessions[cfg.Key] = &session{cfg: cfg, routes: map[RouteKey]SessionConfig{route: cfg}}
		return nil
	}
	prev, had := s.routes[route]
	s.routes[route] = cfg
	if err := h.reprogram(s); err != nil {
		if had {
			s.routes[route] = prev
		} else {
			delete(s.routes, route)
		}
		return err
	}
	return nil
}

// Unref drops route from the session. The session is removed with its last
// user.
func (h *HealthTracker) Unref(route RouteKey, key MonitorKey) error {
	s, ok := h.sessions[key]
	if !ok {
		return nil
	}
	prev, ok := s.routes[route]
	if !ok {
		return nil
	}
	if len(s.routes) == 1 {
		if err := h.sink.RemoveSession(key); err != nil {
			return fmt.Errorf("removing monitor session %s: %w", key, err)
		}
		delete(h.sessions, key)
		util.WithEndpoint(key.Addr.String()).Debugf("monitor session %s removed", key)
		return nil
	}
	delete(s.routes, route)
	if err := h.reprogram(s); err != nil {
		s.routes[route] = prev
		return err
	}
	return nil
}

// reprogram rewrites the session when its owner wants a different
// configuration than the one programmed.
func (h *HealthTracker) reprogram(s *session) error {
	want := s.owner()
	if want == s.cfg {
		return nil
	}
	if err := h.sink.SetSession(want); err != nil {
		return fmt.Errorf("updating monitor session %s: %w", want.Key, err)
	}
	s.cfg = want
	return nil
}

// SetState records a reported state and returns the routes whose effective
// liveness changed.
func (h *HealthTracker) SetState(key MonitorKey, l Liveness) ([]RouteKey, error) {
	s, ok := h.sessions[key]
	if !ok {
		return nil, util.NewUnknownEndpointError(key.String())
	}
	before := h.effective(s)
	s.reported = l
	if h.effective(s) == before {
		return nil, nil
	}
	return sortedRoutes(s.routes), nil
}

// State returns the effective liveness of a session: Unknown when it is not
// tracked or never reported, Down for every session while TSA is asserted.
func (h *HealthTracker) State(key MonitorKey) Liveness {
	s, ok := h.sessions[key]
	if !ok {
		return Unknown
	}
	return h.effective(s)
}

func (h *HealthTracker) effective(s *session) Liveness {
	if h.tsa {
		return Down
	}
	return s.reported
}

// SetTSA asserts or clears traffic-shift-away and returns the routes whose
// effective liveness changed. Reported states are kept.
func (h *HealthTracker) SetTSA(on bool) []RouteKey {
	if h.tsa == on {
		return nil
	}
	before := make(map[MonitorKey]Liveness, len(h.sessions))
	for k, s := range h.sessions {
		before[k] = h.effective(s)
	}
	h.tsa = on
	affected := make(map[RouteKey]struct{})
	for k, s := range h.sessions {
		if h.effective(s) != before[k] {
			for r := range s.routes {
				affected[r] = struct{}{}
			}
		}
	}
	return sortedRoutes(affected)
}

// TSA reports whether traffic-shift-away is asserted.
func (h *HealthTracker) TSA() bool { return h.tsa }

// Len returns the number of tracked sessions.
func (h *HealthTracker) Len() int { return len(h.sessions) }

// SessionStatus describes one session.
type SessionStatus struct {
	Key      MonitorKey
	Reported Liveness
	State    Liveness
	Routes   []RouteKey
}

// Sessions returns all sessions ordered by key.
func (h *HealthTracker) Sessions() []SessionStatus {
	out := make([]SessionStatus, 0, len(h.sessions))
	for k, s := range h.sessions {
		out = append(out, SessionStatus{Key: k, Reported: s.reported, State: h.effective(s), Routes: sortedRoutes(s.routes)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

func sortedRoutes[V any](m map[RouteKey]V) []RouteKey {
	out := make([]RouteKey, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
