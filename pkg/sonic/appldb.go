package sonic

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/newtron-network/vnetorch/pkg/vnet"
)

// APP_DB tables.
const (
	RouteTunnelTable = "VNET_ROUTE_TUNNEL_TABLE"
	BFDSessionTable  = "BFD_SESSION_TABLE"
	MonitorTable     = "VNET_MONITOR_TABLE"
	DecapTermTable   = "TUNNEL_DECAP_TERM_TABLE"
	SwitchTable      = "SWITCH_TABLE"
)

// Intent is one VNET_ROUTE_TUNNEL_TABLE entry.
type Intent struct {
	VNet   string
	Prefix string
	Fields map[string]string
}

// AppDBClient wraps Redis client for APP_DB access (DB 0). It reads route
// intents and the ordered ECMP switch flag, and programs monitor sessions
// and decap terms.
type AppDBClient struct {
	dbClient
}

// NewAppDBClient creates a new APP_DB client.
func NewAppDBClient(addr string, db int) *AppDBClient {
	return &AppDBClient{dbClient: newDBClient(addr, db, "app_db")}
}

// RouteIntents reads every route intent.
func (c *AppDBClient) RouteIntents() ([]Intent, error) {
	keys, err := scanKeys(c.ctx, c.client, RouteTunnelTable+appSep+"*", 1000)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", RouteTunnelTable, err)
	}
	var out []Intent
	for _, key := range keys {
		vnetName, prefix, ok := ParseIntentKey(key)
		if !ok {
			continue
		}
		vals, err := c.hash(key)
		if err != nil {
			return nil, err
		}
		if vals == nil {
			continue
		}
		out = append(out, Intent{VNet: vnetName, Prefix: prefix, Fields: vals})
	}
	return out, nil
}

// RouteIntent reads one route intent. Returns nil fields (not error) if the
// entry does not exist.
func (c *AppDBClient) RouteIntent(vnetName, prefix string) (map[string]string, error) {
	return c.hash(tableKey(appSep, RouteTunnelTable, vnetName, prefix))
}

// SetRouteIntent writes a route intent, replacing any previous fields.
func (c *AppDBClient) SetRouteIntent(vnetName, prefix string, fields map[string]string) error {
	return c.replace(tableKey(appSep, RouteTunnelTable, vnetName, prefix), fields)
}

// DeleteRouteIntent removes a route intent.
func (c *AppDBClient) DeleteRouteIntent(vnetName, prefix string) error {
	return c.del(tableKey(appSep, RouteTunnelTable, vnetName, prefix))
}

// ParseIntentKey splits "VNET_ROUTE_TUNNEL_TABLE:<vnet>:<prefix>". The
// prefix may itself contain ':' (IPv6).
func ParseIntentKey(key string) (vnetName, prefix string, ok bool) {
	rest, found := strings.CutPrefix(key, RouteTunnelTable+appSep)
	if !found {
		return "", "", false
	}
	vnetName, prefix, found = strings.Cut(rest, appSep)
	if !found || vnetName == "" || prefix == "" {
		return "", "", false
	}
	return vnetName, prefix, true
}

// OrderedECMP reads SWITCH_TABLE:switch ordered_ecmp. ok is false when the
// field is absent.
func (c *AppDBClient) OrderedECMP() (enabled, ok bool, err error) {
	vals, err := c.hash(tableKey(appSep, SwitchTable, "switch"))
	if err != nil {
		return false, false, err
	}
	v, ok := vals["ordered_ecmp"]
	return v == "true", ok, nil
}

// SessionKey returns the APP_DB key of a monitor session.
func SessionKey(key vnet.MonitorKey) string {
	if key.Mode == vnet.MonitorCustom {
		return tableKey(appSep, MonitorTable, key.Addr.String(), key.Prefix.String())
	}
	return tableKey(appSep, BFDSessionTable, "default", "default", key.Addr.String())
}

// SessionFields renders the APP_DB fields of a monitor session.
func SessionFields(cfg vnet.SessionConfig) map[string]string {
	if cfg.Key.Mode == vnet.MonitorCustom {
		fields := map[string]string{"packet_type": "vxlan"}
		if cfg.OverlayDMAC != "" {
			fields["overlay_dmac"] = cfg.OverlayDMAC
		}
		if cfg.TxInterval > 0 {
			fields["interval"] = strconv.Itoa(cfg.TxInterval)
		}
		return fields
	}
	fields := map[string]string{"multihop": "true"}
	if cfg.LocalAddr.IsValid() {
		fields["local_addr"] = cfg.LocalAddr.String()
	}
	if cfg.RxInterval > 0 {
		fields["rx_interval"] = strconv.Itoa(cfg.RxInterval)
	}
	if cfg.TxInterval > 0 {
		fields["tx_interval"] = strconv.Itoa(cfg.TxInterval)
	}
	return fields
}

// SetSession creates or rewrites a BFD or custom monitor session.
func (c *AppDBClient) SetSession(cfg vnet.SessionConfig) error {
	return c.replace(SessionKey(cfg.Key), SessionFields(cfg))
}

// RemoveSession removes a monitor session.
func (c *AppDBClient) RemoveSession(key vnet.MonitorKey) error {
	return c.del(SessionKey(key))
}

// SetDecapTerm writes a subnet decap term for prefix on tunnel.
func (c *AppDBClient) SetDecapTerm(tunnel string, prefix netip.Prefix, srcIP string) error {
	return c.set(tableKey(appSep, DecapTermTable, tunnel, prefix.String()), map[string]string{
		"src_ip":      srcIP,
		"term_type":   "MP2MP",
		"subnet_type": "vip",
	})
}

// DeleteDecapTerm removes a subnet decap term.
func (c *AppDBClient) DeleteDecapTerm(tunnel string, prefix netip.Prefix) error {
	return c.del(tableKey(appSep, DecapTermTable, tunnel, prefix.String()))
}
