package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/newtron-network/vnetorch/pkg/util"
	"github.com/newtron-network/vnetorch/pkg/vnet"
)

// RouteView is the JSON form of a route's status.
type RouteView struct {
	VNet       string   `json:"vnet"`
	Prefix     string   `json:"prefix"`
	State      string   `json:"state"`
	Target     string   `json:"target,omitempty"`
	Active     []string `json:"active"`
	Endpoints  []string `json:"endpoints"`
	Advertised string   `json:"advertised,omitempty"`
	Pending    bool     `json:"pending,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// GroupView is the JSON form of a next-hop group.
type GroupView struct {
	ID      string   `json:"id"`
	OID     string   `json:"oid"`
	Ordered bool     `json:"ordered"`
	Members []string `json:"members"`
	Refs    int      `json:"refs"`
}

// SessionView is the JSON form of a monitor session.
type SessionView struct {
	Key      string   `json:"key"`
	Reported string   `json:"reported"`
	State    string   `json:"state"`
	Routes   []string `json:"routes"`
}

// Snapshot is the reconciler state served on /api/state.
type Snapshot struct {
	OrderedECMP bool          `json:"ordered_ecmp"`
	TSA         bool          `json:"tsa"`
	Routes      []RouteView   `json:"routes"`
	Groups      []GroupView   `json:"groups"`
	NextHops    int           `json:"nexthops"`
	Sessions    []SessionView `json:"sessions"`
}

// snapshot builds a Snapshot. It must run on the loop goroutine.
func snapshot(r *vnet.Reconciler) Snapshot {
	s := Snapshot{
		OrderedECMP: r.OrderedECMP(),
		TSA:         r.TSA(),
		NextHops:    len(r.NextHops()),
		Routes:      []RouteView{},
		Groups:      []GroupView{},
		Sessions:    []SessionView{},
	}
	for _, rs := range r.Routes() {
		s.Routes = append(s.Routes, RouteView{
			VNet:       rs.Key.VNet,
			Prefix:     rs.Key.Prefix.String(),
			State:      rs.State.String(),
			Target:     rs.Target,
			Active:     rs.Active,
			Endpoints:  rs.Endpoints,
			Advertised: rs.Advertised,
			Pending:    rs.Pending,
			Error:      rs.Error,
		})
	}
	for _, g := range r.Groups() {
		gv := GroupView{ID: g.ID, OID: string(g.OID), Ordered: g.Ordered, Refs: g.Refs}
		for _, m := range g.Members {
			gv.Members = append(gv.Members, m.NextHop.String())
		}
		s.Groups = append(s.Groups, gv)
	}
	for _, ss := range r.Sessions() {
		sv := SessionView{Key: ss.Key.String(), Reported: ss.Reported.String(), State: ss.State.String()}
		for _, rk := range ss.Routes {
			sv.Routes = append(sv.Routes, rk.String())
		}
		s.Sessions = append(s.Sessions, sv)
	}
	return s
}

// newHandler serves Prometheus metrics on /metrics and the reconciler
// snapshot on /api/state.
func newHandler(loop *vnet.Loop) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		var snap Snapshot
		if err := loop.Do(ctx, func(r *vnet.Reconciler) { snap = snapshot(r) }); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			util.Debugf("api: writing state: %v", err)
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// serveHTTP runs the HTTP server until ctx is cancelled.
func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		util.WithField("addr", addr).Info("serving metrics")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
