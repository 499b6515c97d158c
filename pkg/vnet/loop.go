package vnet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newtron-network/vnetorch/pkg/util"
)

// Event is one unit of work for the reconcile loop.
type Event interface {
	Apply(r *Reconciler) error
	Kind() string
}

// RouteIntentEvent carries a raw APP_DB route intent. Nil Fields deletes
// the route.
type RouteIntentEvent struct {
	VNet   string
	Prefix string
	Fields map[string]string
}

func (e RouteIntentEvent) Kind() string { return "route" }

func (e RouteIntentEvent) Apply(r *Reconciler) error {
	if e.Fields == nil {
		p, err := ParsePrefix(e.Prefix)
		if err != nil {
			return util.NewMalformedIntentError(e.VNet+"|"+e.Prefix, err.Error())
		}
		return r.DeleteRoute(RouteKey{VNet: e.VNet, Prefix: p})
	}
	ri, err := ParseRouteIntent(e.VNet, e.Prefix, e.Fields)
	if err != nil {
		return err
	}
	return r.SetRoute(ri)
}

// HealthEvent carries a monitor session state report.
type HealthEvent struct {
	Key   MonitorKey
	State Liveness
}

func (e HealthEvent) Kind() string { return "health" }

func (e HealthEvent) Apply(r *Reconciler) error { return r.SetHealth(e.Key, e.State) }

// TSAEvent asserts or clears traffic-shift-away.
type TSAEvent struct{ Enabled bool }

func (e TSAEvent) Kind() string { return "tsa" }

func (e TSAEvent) Apply(r *Reconciler) error { return r.SetTSA(e.Enabled) }

// OrderedECMPEvent toggles ordered ECMP.
type OrderedECMPEvent struct{ Enabled bool }

func (e OrderedECMPEvent) Kind() string { return "ordered_ecmp" }

func (e OrderedECMPEvent) Apply(r *Reconciler) error { return r.SetOrderedECMP(e.Enabled) }

// TunnelEvent adds, updates or deletes a VXLAN tunnel.
type TunnelEvent struct {
	Config  TunnelConfig
	Deleted bool
}

func (e TunnelEvent) Kind() string { return "tunnel" }

func (e TunnelEvent) Apply(r *Reconciler) error {
	if e.Deleted {
		return r.DeleteTunnel(e.Config.Name)
	}
	return r.SetTunnel(e.Config)
}

// VNetEvent adds, updates or deletes a VNET.
type VNetEvent struct {
	Config  VNetConfig
	Deleted bool
}

func (e VNetEvent) Kind() string { return "vnet" }

func (e VNetEvent) Apply(r *Reconciler) error {
	if e.Deleted {
		return r.DeleteVNet(e.Config.Name)
	}
	return r.SetVNet(e.Config)
}

// DecapEvent carries the SUBNET_DECAP configuration.
type DecapEvent struct{ Config DecapConfig }

func (e DecapEvent) Kind() string { return "subnet_decap" }

func (e DecapEvent) Apply(r *Reconciler) error { return r.SetSubnetDecap(e.Config) }

type funcEvent struct {
	fn   func(*Reconciler)
	done chan struct{}
}

func (e funcEvent) Kind() string { return "query" }

func (e funcEvent) Apply(r *Reconciler) error {
	e.fn(r)
	close(e.done)
	return nil
}

// Loop applies events to a Reconciler one at a time. Producers call Submit
// from any goroutine; only Run touches the Reconciler.
type Loop struct {
	rec    *Reconciler
	events chan Event
}

// NewLoop creates a loop with a queue of the given size.
func NewLoop(rec *Reconciler, queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Loop{rec: rec, events: make(chan Event, queueSize)}
}

// Submit enqueues ev, blocking while the queue is full.
func (l *Loop) Submit(ctx context.Context, ev Event) error {
	select {
	case l.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop goroutine after every event submitted before it,
// and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func(*Reconciler)) error {
	ev := funcEvent{fn: fn, done: make(chan struct{})}
	if err := l.Submit(ctx, ev); err != nil {
		return err
	}
	select {
	case <-ev.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	log := util.WithComponent("loop")
	log.Info("reconcile loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info("reconcile loop stopped")
			return nil
		case ev := <-l.events:
			l.handle(ev)
		}
	}
}

func (l *Loop) handle(ev Event) {
	start := time.Now()
	err := ev.Apply(l.rec)
	eventDuration.Observe(time.Since(start).Seconds())
	eventsCounter.WithLabelValues(ev.Kind()).Inc()
	if err == nil {
		return
	}

	class := ErrorClass(err)
	eventErrorsCounter.WithLabelValues(class).Inc()
	log := util.WithComponent("loop").WithField("event", Describe(ev))
	switch class {
	case "unknown_endpoint":
		log.Debugf("dropped: %v", err)
	case "malformed_intent", "in_use", "dependency", "validation":
		log.Warnf("rejected: %v", err)
	default:
		log.Errorf("failed: %v", err)
	}
}

// ErrorClass buckets an error for metrics and logging.
func ErrorClass(err error) string {
	switch {
	case errors.Is(err, util.ErrUnknownEndpoint):
		return "unknown_endpoint"
	case errors.Is(err, util.ErrMalformedIntent):
		return "malformed_intent"
	case errors.Is(err, util.ErrAllocation):
		return "allocation"
	case errors.Is(err, util.ErrInUse):
		return "in_use"
	case errors.Is(err, util.ErrDependencyMissing):
		return "dependency"
	case errors.Is(err, util.ErrValidationFailed):
		return "validation"
	default:
		return "other"
	}
}

// Describe names an event for logs.
func Describe(ev Event) string {
	switch e := ev.(type) {
	case RouteIntentEvent:
		if e.Fields == nil {
			return fmt.Sprintf("route del %s|%s", e.VNet, e.Prefix)
		}
		return fmt.Sprintf("route set %s|%s", e.VNet, e.Prefix)
	case HealthEvent:
		return fmt.Sprintf("health %s %s", e.Key, e.State)
	default:
		return ev.Kind()
	}
}
