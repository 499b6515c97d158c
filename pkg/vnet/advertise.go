package vnet

import (
	"fmt"
	"net/netip"
)

type advEntry struct {
	profile string              // as published
	routes  map[RouteKey]string // contributor to the profile it asks for
}

// wanted returns the profile of the lowest contributor that sets one.
func (e *advEntry) wanted() string {
	for _, r := range sortedRoutes(e.routes) {
		if p := e.routes[r]; p != "" {
			return p
		}
	}
	return ""
}

// Advertiser keeps STATE_DB ADVERTISE_NETWORK_TABLE in step with the set of
// installed routes contributing to each advertised prefix.
type Advertiser struct {
	sink     StateSink
	prefixes map[netip.Prefix]*advEntry
}

// NewAdvertiser creates an advertiser publishing to sink.
func NewAdvertiser(sink StateSink) *Advertiser {
	return &Advertiser{sink: sink, prefixes: make(map[netip.Prefix]*advEntry)}
}

// Add makes route a contributor of prefix with the given profile. The entry
// is written on the first contributor and rewritten whenever the profile
// derived from all contributors changes.
func (a *Advertiser) Add(prefix netip.Prefix, profile string, route RouteKey) error {
	e, ok := a.prefixes[prefix]
	if !ok {
		if err := a.sink.SetAdvertisement(prefix, profile); err != nil {
			return fmt.Errorf("advertising %s: %w", prefix, err)
		}
		a.prefixes[prefix] = &advEntry{profile: profile, routes: map[RouteKey]string{route: profile}}
		advertisedGauge.Set(float64(len(a.prefixes)))
		return nil
	}
	prev, had := e.routes[route]
	e.routes[route] = profile
	if err := a.republish(prefix, e); err != nil {
		if had {
			e.routes[route] = prev
		} else {
			delete(e.routes, route)
		}
		return err
	}
	return nil
}

// Remove drops route from prefix's contributors and withdraws the prefix
// with its last contributor.
func (a *Advertiser) Remove(prefix netip.Prefix, route RouteKey) error {
	e, ok := a.prefixes[prefix]
	if !ok {
		return nil
	}
	prev, ok := e.routes[route]
	if !ok {
		return nil
	}
	if len(e.routes) == 1 {
		if err := a.sink.DeleteAdvertisement(prefix); err != nil {
			return fmt.Errorf("withdrawing %s: %w", prefix, err)
		}
		delete(a.prefixes, prefix)
		advertisedGauge.Set(float64(len(a.prefixes)))
		return nil
	}
	delete(e.routes, route)
	if err := a.republish(prefix, e); err != nil {
		e.routes[route] = prev
		return err
	}
	return nil
}

func (a *Advertiser) republish(prefix netip.Prefix, e *advEntry) error {
	want := e.wanted()
	if want == e.profile {
		return nil
	}
	if err := a.sink.SetAdvertisement(prefix, want); err != nil {
		return fmt.Errorf("advertising %s: %w", prefix, err)
	}
	e.profile = want
	return nil
}

// Advertised reports whether prefix is advertised and with which profile.
func (a *Advertiser) Advertised(prefix netip.Prefix) (string, bool) {
	e, ok := a.prefixes[prefix]
	if !ok {
		return "", false
	}
	return e.profile, true
}

// Contributors returns the routes currently keeping prefix advertised.
func (a *Advertiser) Contributors(prefix netip.Prefix) []RouteKey {
	e, ok := a.prefixes[prefix]
	if !ok {
		return nil
	}
	return sortedRoutes(e.routes)
}
