package vnet

import (
	"fmt"
	"net/netip"
)

// Decap tunnel names for subnet decap terms.
const (
	DecapTunnelV4 = "IPINIP_SUBNET"
	DecapTunnelV6 = "IPINIP_SUBNET_V6"
)

// DecapConfig is the CONFIG_DB SUBNET_DECAP|AZURE entry.
type DecapConfig struct {
	Enabled bool
	SrcIP   string
	SrcIPv6 string
}

// SubnetDecap keeps one decap term per prefix while at least one route with
// an Up monitored endpoint contributes to it.
type SubnetDecap struct {
	sink  DecapSink
	cfg   DecapConfig
	terms map[netip.Prefix]map[RouteKey]struct{}
}

// NewSubnetDecap creates a disabled SubnetDecap.
func NewSubnetDecap(sink DecapSink) *SubnetDecap {
	return &SubnetDecap{sink: sink, terms: make(map[netip.Prefix]map[RouteKey]struct{})}
}

// Config returns the current configuration.
func (d *SubnetDecap) Config() DecapConfig { return d.cfg }

// Enabled reports whether decap terms are being programmed.
func (d *SubnetDecap) Enabled() bool { return d.cfg.Enabled }

// Configure replaces the configuration. The caller withdraws every
// contribution before and re-adds them after.
func (d *SubnetDecap) Configure(cfg DecapConfig) {
	d.cfg = cfg
}

func decapTunnel(prefix netip.Prefix) string {
	if prefix.Addr().Is4() {
		return DecapTunnelV4
	}
	return DecapTunnelV6
}

func (d *SubnetDecap) srcIP(prefix netip.Prefix) string {
	if prefix.Addr().Is4() {
		return d.cfg.SrcIP
	}
	return d.cfg.SrcIPv6
}

// Add makes route a contributor of the decap term for prefix.
func (d *SubnetDecap) Add(prefix netip.Prefix, route RouteKey) error {
	if !d.cfg.Enabled {
		return nil
	}
	routes, ok := d.terms[prefix]
	if !ok {
		if err := d.sink.SetDecapTerm(decapTunnel(prefix), prefix, d.srcIP(prefix)); err != nil {
			return fmt.Errorf("adding decap term %s: %w", prefix, err)
		}
		routes = make(map[RouteKey]struct{})
		d.terms[prefix] = routes
	}
	routes[route] = struct{}{}
	return nil
}

// Remove drops route from prefix's contributors and deletes the term with
// its last contributor.
func (d *SubnetDecap) Remove(prefix netip.Prefix, route RouteKey) error {
	routes, ok := d.terms[prefix]
	if !ok {
		return nil
	}
	if _, ok := routes[route]; !ok {
		return nil
	}
	if len(routes) == 1 {
		if err := d.sink.DeleteDecapTerm(decapTunnel(prefix), prefix); err != nil {
			return fmt.Errorf("removing decap term %s: %w", prefix, err)
		}
		delete(d.terms, prefix)
		return nil
	}
	delete(routes, route)
	return nil
}

// Has reports whether a decap term exists for prefix.
func (d *SubnetDecap) Has(prefix netip.Prefix) bool {
	_, ok := d.terms[prefix]
	return ok
}
