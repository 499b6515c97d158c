// Package daemon wires the reconciler to the switch databases: it performs
// an initial sync, feeds keyspace notifications through the event loop,
// and serves metrics.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/newtron-network/vnetorch/pkg/asic"
	"github.com/newtron-network/vnetorch/pkg/audit"
	"github.com/newtron-network/vnetorch/pkg/settings"
	"github.com/newtron-network/vnetorch/pkg/sonic"
	"github.com/newtron-network/vnetorch/pkg/util"
	"github.com/newtron-network/vnetorch/pkg/vnet"
)

const lockName = "vnetorchd"

// Options adjust a run.
type Options struct {
	// DryRun programs an in-memory ASIC store and writes nothing to Redis.
	DryRun bool
}

// Daemon is one vnetorchd instance.
type Daemon struct {
	settings *settings.Settings
	opts     Options
	holder   string

	conn    *sonic.Conn
	journal *audit.FileLogger
	rec     *vnet.Reconciler
	loop    *vnet.Loop
}

// New creates a daemon. Nothing is connected until Run.
func New(s *settings.Settings, opts Options) *Daemon {
	host, _ := os.Hostname()
	return &Daemon{
		settings: s,
		opts:     opts,
		holder:   fmt.Sprintf("%s:%d", host, os.Getpid()),
	}
}

// Run connects, syncs and processes notifications until ctx is cancelled
// or a watcher fails.
func (d *Daemon) Run(ctx context.Context) error {
	s := d.settings
	conn, err := sonic.Open(sonic.Options{
		Addr: s.RedisAddr,
		DBs: sonic.DBNumbers{
			App:    s.Databases.App,
			Asic:   s.Databases.Asic,
			Config: s.Databases.Config,
			State:  s.Databases.State,
		},
		SkipAsic: d.opts.DryRun,
	})
	if err != nil {
		return err
	}
	d.conn = conn
	defer conn.Close()

	if !d.opts.DryRun {
		if err := conn.State.AcquireLock(lockName, d.holder, s.LockTTL); err != nil {
			return err
		}
		defer func() {
			if err := conn.State.ReleaseLock(lockName, d.holder); err != nil {
				util.Warnf("releasing lock: %v", err)
			}
		}()

		journal, err := audit.NewFileLogger(s.AuditLog, audit.RotationConfig{MaxSize: 64 << 20, MaxBackups: 5})
		if err != nil {
			return err
		}
		d.journal = journal
		defer journal.Close()

		d.purge()
	}

	d.rec = vnet.NewReconciler(d.reconcilerConfig())
	d.loop = vnet.NewLoop(d.rec, s.LoopQueueSize)

	tr := translator{src: connSource{conn: conn}, orderedDefault: s.OrderedECMP}
	watchers, err := d.subscribe(ctx, tr)
	if err != nil {
		return err
	}
	defer func() {
		for _, w := range watchers {
			w.sub.Close()
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.loop.Run(ctx) })

	synced := make(chan struct{})
	for _, w := range watchers {
		w := w
		g.Go(func() error { return d.watch(ctx, w, synced) })
	}

	if err := d.sync(ctx, tr); err != nil {
		cancel()
		g.Wait()
		return fmt.Errorf("initial sync: %w", err)
	}
	close(synced)

	if s.MetricsAddr != "" {
		g.Go(func() error { return serveHTTP(ctx, s.MetricsAddr, newHandler(d.loop)) })
	}
	if !d.opts.DryRun {
		g.Go(func() error { return d.refreshLock(ctx) })
	}

	util.WithFields(map[string]interface{}{
		"dry_run": d.opts.DryRun,
		"holder":  d.holder,
	}).Info("vnetorchd running")
	return g.Wait()
}

// purge removes the ASIC objects a previous run left behind. Entries that
// cannot be removed stay recorded and are retried on the next start.
func (d *Daemon) purge() {
	n, err := asic.Purge(d.conn.Asic, d.conn.State)
	if err != nil {
		util.Warnf("removing objects of a previous run: %v", err)
	}
	if n > 0 {
		util.WithField("objects", n).Info("removed objects of a previous run")
	}
}

func (d *Daemon) reconcilerConfig() vnet.Config {
	cfg := vnet.Config{
		MaxNextHopGroups: d.settings.MaxNextHopGroups,
		OrderedECMP:      d.settings.OrderedECMP,
	}
	if d.opts.DryRun {
		cfg.Store = asic.NewMemStore()
		return cfg
	}
	cfg.Store = asic.NewOwningStore(d.conn.Asic, d.conn.State)
	cfg.Monitors = d.conn.App
	cfg.Decap = d.conn.App
	cfg.State = d.conn.State
	cfg.Journal = d.journal
	return cfg
}

// sync submits the full current state, then publishes capabilities and
// sweeps state left by earlier runs once every sync event has been applied.
func (d *Daemon) sync(ctx context.Context, tr translator) error {
	start := time.Now()
	events, err := tr.initialEvents()
	if err != nil {
		return err
	}
	states, adverts, err := tr.src.Published()
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := d.loop.Submit(ctx, ev); err != nil {
			return err
		}
	}
	var capErr, sweepErr error
	var routes, swept int
	if err := d.loop.Do(ctx, func(r *vnet.Reconciler) {
		capErr = r.PublishCapabilities()
		swept, sweepErr = r.Sweep(states, adverts)
		routes = len(r.Routes())
	}); err != nil {
		return err
	}
	if capErr != nil {
		util.Warnf("publishing switch capability: %v", capErr)
	}
	if sweepErr != nil {
		util.Warnf("sweeping stale state: %v", sweepErr)
	}
	util.WithFields(map[string]interface{}{
		"events":   len(events),
		"routes":   routes,
		"swept":    swept,
		"duration": time.Since(start).String(),
	}).Info("initial sync complete")
	return nil
}

// subscription delivers keyspace notifications.
type subscription interface {
	Run(ctx context.Context, fn func(sonic.Notification)) error
	Close() error
}

// watcher pairs a subscription with the translation of its notifications.
type watcher struct {
	sub       subscription
	translate func(sonic.Notification) (vnet.Event, error)
}

// subscribe opens the keyspace subscriptions of all three databases. The
// initial snapshot is read only after they are confirmed, so no change is
// missed between the two.
func (d *Daemon) subscribe(ctx context.Context, tr translator) ([]watcher, error) {
	specs := []struct {
		open     func(context.Context, []string) (*sonic.Subscription, error)
		patterns []string
		fn       func(sonic.Notification) (vnet.Event, error)
	}{
		{open: d.conn.Config.Subscribe, patterns: configPatterns, fn: tr.configEvent},
		{open: d.conn.App.Subscribe, patterns: appPatterns, fn: tr.appEvent},
		{open: d.conn.State.Subscribe, patterns: statePatterns, fn: tr.stateEvent},
	}
	var out []watcher
	for _, spec := range specs {
		sub, err := spec.open(ctx, spec.patterns)
		if err != nil {
			for _, w := range out {
				w.sub.Close()
			}
			return nil, err
		}
		out = append(out, watcher{sub: sub, translate: spec.fn})
	}
	return out, nil
}

// watch submits one event per translated notification. Notifications are
// held until synced is closed so none is applied ahead of the snapshot;
// translation re-reads the entry, so a held notification yields the
// entry's state at the time it is applied.
func (d *Daemon) watch(ctx context.Context, w watcher, synced <-chan struct{}) error {
	err := w.sub.Run(ctx, func(n sonic.Notification) {
		select {
		case <-synced:
		case <-ctx.Done():
			return
		}
		ev, err := w.translate(n)
		if err != nil {
			util.WithField("key", n.Key).Warnf("ignoring notification: %v", err)
			return
		}
		if ev == nil {
			return
		}
		if err := d.loop.Submit(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			util.WithField("key", n.Key).Warnf("dropping event: %v", err)
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// refreshLock re-acquires the instance lock before its TTL lapses.
func (d *Daemon) refreshLock(ctx context.Context) error {
	ttl := d.settings.LockTTL
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.conn.State.AcquireLock(lockName, d.holder, ttl); err != nil {
				return fmt.Errorf("refreshing lock: %w", err)
			}
		}
	}
}
