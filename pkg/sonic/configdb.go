package sonic

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"github.com/newtron-network/vnetorch/pkg/vnet"
)

// CONFIG_DB tables.
const (
	VNetTable         = "VNET"
	VXLANTunnelTable  = "VXLAN_TUNNEL"
	SubnetDecapTable  = "SUBNET_DECAP"
	DeviceGlobalTable = "BGP_DEVICE_GLOBAL"
)

// ConfigDBClient wraps Redis client for config_db access. It reads the
// VNET, tunnel, subnet decap and TSA configuration and writes the TSA flag.
type ConfigDBClient struct {
	dbClient
}

// NewConfigDBClient creates a new config_db client
func NewConfigDBClient(addr string, db int) *ConfigDBClient {
	return &ConfigDBClient{dbClient: newDBClient(addr, db, "config_db")}
}

// Get reads a table entry. Returns nil (not error) if it does not exist.
func (c *ConfigDBClient) Get(table, key string) (map[string]string, error) {
	vals, err := c.hash(tableKey(tableSep, table, key))
	if err != nil || vals == nil {
		return nil, err
	}
	return dropNull(vals), nil
}

// Set writes a table entry.
func (c *ConfigDBClient) Set(table, key string, fields map[string]string) error {
	return c.set(tableKey(tableSep, table, key), fields)
}

// Delete removes a table entry
func (c *ConfigDBClient) Delete(table, key string) error {
	return c.del(tableKey(tableSep, table, key))
}

// TableKeys returns the entry names of a table, sorted.
func (c *ConfigDBClient) TableKeys(table string) ([]string, error) {
	keys, err := scanKeys(c.ctx, c.client, table+tableSep+"*", 100)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", table, err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, table+tableSep))
	}
	sort.Strings(names)
	return names, nil
}

// Tunnels reads every VXLAN_TUNNEL entry.
func (c *ConfigDBClient) Tunnels() ([]vnet.TunnelConfig, error) {
	names, err := c.TableKeys(VXLANTunnelTable)
	if err != nil {
		return nil, err
	}
	var out []vnet.TunnelConfig
	for _, name := range names {
		vals, err := c.Get(VXLANTunnelTable, name)
		if err != nil {
			return nil, err
		}
		if vals == nil {
			continue
		}
		cfg, err := ParseTunnel(name, vals)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// VNets reads every VNET entry.
func (c *ConfigDBClient) VNets() ([]vnet.VNetConfig, error) {
	names, err := c.TableKeys(VNetTable)
	if err != nil {
		return nil, err
	}
	var out []vnet.VNetConfig
	for _, name := range names {
		vals, err := c.Get(VNetTable, name)
		if err != nil {
			return nil, err
		}
		if vals == nil {
			continue
		}
		cfg, err := ParseVNet(name, vals)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// SubnetDecap reads SUBNET_DECAP|AZURE. A missing entry is disabled.
func (c *ConfigDBClient) SubnetDecap() (vnet.DecapConfig, error) {
	vals, err := c.Get(SubnetDecapTable, "AZURE")
	if err != nil {
		return vnet.DecapConfig{}, err
	}
	return ParseSubnetDecap(vals), nil
}

// TSA reads BGP_DEVICE_GLOBAL|STATE tsa_enabled.
func (c *ConfigDBClient) TSA() (bool, error) {
	vals, err := c.Get(DeviceGlobalTable, "STATE")
	if err != nil {
		return false, err
	}
	return vals["tsa_enabled"] == "true", nil
}

// SetTSA writes BGP_DEVICE_GLOBAL|STATE tsa_enabled.
func (c *ConfigDBClient) SetTSA(enabled bool) error {
	return c.Set(DeviceGlobalTable, "STATE", map[string]string{
		"tsa_enabled": strconv.FormatBool(enabled),
	})
}

// ParseTunnel converts a VXLAN_TUNNEL entry.
func ParseTunnel(name string, vals map[string]string) (vnet.TunnelConfig, error) {
	cfg := vnet.TunnelConfig{Name: name}
	if s := vals["src_ip"]; s != "" {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return cfg, fmt.Errorf("VXLAN_TUNNEL %s: bad src_ip %q", name, s)
		}
		cfg.SrcIP = addr
	}
	return cfg, nil
}

// ParseVNet converts a VNET entry.
func ParseVNet(name string, vals map[string]string) (vnet.VNetConfig, error) {
	cfg := vnet.VNetConfig{
		Name:            name,
		Tunnel:          vals["vxlan_tunnel"],
		AdvertisePrefix: vals["advertise_prefix"] == "true",
		OverlayDMAC:     vals["overlay_dmac"],
	}
	if cfg.Tunnel == "" {
		return cfg, fmt.Errorf("VNET %s: missing vxlan_tunnel", name)
	}
	vni, err := strconv.ParseUint(vals["vni"], 10, 32)
	if err != nil || vni == 0 || vni > 1<<24-1 {
		return cfg, fmt.Errorf("VNET %s: bad vni %q", name, vals["vni"])
	}
	cfg.VNI = uint32(vni)
	return cfg, nil
}

// ParseSubnetDecap converts a SUBNET_DECAP entry. nil vals is disabled.
func ParseSubnetDecap(vals map[string]string) vnet.DecapConfig {
	return vnet.DecapConfig{
		Enabled: vals["status"] == "enable",
		SrcIP:   vals["src_ip"],
		SrcIPv6: vals["src_ip_v6"],
	}
}
