package sonic

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/vnetorch/pkg/asic"
	"github.com/newtron-network/vnetorch/pkg/util"
	"github.com/newtron-network/vnetorch/pkg/vnet"
)

// STATE_DB tables. BFD_SESSION_TABLE and VNET_MONITOR_TABLE share their
// names with the APP_DB tables but use '|' separators.
const (
	RouteStateTable       = "VNET_ROUTE_TUNNEL_TABLE"
	AdvertiseTable        = "ADVERTISE_NETWORK_TABLE"
	SwitchCapabilityTable = "SWITCH_CAPABILITY"
	lockTable             = "VNETORCH_LOCK"
	ownedTable            = "VNETORCH_OBJECT_TABLE"
)

// RouteStateEntry is a STATE_DB VNET_ROUTE_TUNNEL_TABLE entry.
type RouteStateEntry struct {
	VNet            string
	Prefix          string
	State           string
	ActiveEndpoints []string
}

// StateDBClient wraps Redis client for state_db access (DB 6). It implements
// vnet.StateSink and reads monitor session state.
type StateDBClient struct {
	dbClient
}

// NewStateDBClient creates a new state_db client
func NewStateDBClient(addr string, db int) *StateDBClient {
	return &StateDBClient{dbClient: newDBClient(addr, db, "state_db")}
}

// SetRouteState publishes the active endpoints and state of a route.
func (c *StateDBClient) SetRouteState(route vnet.RouteKey, active []string, state string) error {
	return c.set(tableKey(tableSep, RouteStateTable, route.VNet, route.Prefix.String()), map[string]string{
		"active_endpoints": strings.Join(active, ","),
		"state":            state,
	})
}

// DeleteRouteState removes the state entry of a route.
func (c *StateDBClient) DeleteRouteState(route vnet.RouteKey) error {
	return c.del(tableKey(tableSep, RouteStateTable, route.VNet, route.Prefix.String()))
}

// SetAdvertisement writes ADVERTISE_NETWORK_TABLE|<prefix>.
func (c *StateDBClient) SetAdvertisement(prefix netip.Prefix, profile string) error {
	var fields map[string]string
	if profile != "" {
		fields = map[string]string{"profile": profile}
	}
	return c.replace(tableKey(tableSep, AdvertiseTable, prefix.String()), fields)
}

// DeleteAdvertisement removes ADVERTISE_NETWORK_TABLE|<prefix>.
func (c *StateDBClient) DeleteAdvertisement(prefix netip.Prefix) error {
	return c.del(tableKey(tableSep, AdvertiseTable, prefix.String()))
}

// SetSwitchCapability merges fields into SWITCH_CAPABILITY|switch.
func (c *StateDBClient) SetSwitchCapability(fields map[string]string) error {
	return c.set(tableKey(tableSep, SwitchCapabilityTable, "switch"), fields)
}

// RouteStates reads every published route state, optionally limited to one
// VNET, sorted by VNET then prefix.
func (c *StateDBClient) RouteStates(vnetName string) ([]RouteStateEntry, error) {
	pattern := RouteStateTable + tableSep + "*"
	if vnetName != "" {
		pattern = tableKey(tableSep, RouteStateTable, vnetName, "*")
	}
	keys, err := scanKeys(c.ctx, c.client, pattern, 1000)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", RouteStateTable, err)
	}
	var out []RouteStateEntry
	for _, key := range keys {
		parts := strings.SplitN(key, tableSep, 3)
		if len(parts) != 3 {
			continue
		}
		vals, err := c.hash(key)
		if err != nil {
			return nil, err
		}
		if vals == nil {
			continue
		}
		out = append(out, RouteStateEntry{
			VNet:            parts[1],
			Prefix:          parts[2],
			State:           vals["state"],
			ActiveEndpoints: util.SplitCommaSeparated(vals["active_endpoints"]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VNet != out[j].VNet {
			return out[i].VNet < out[j].VNet
		}
		return out[i].Prefix < out[j].Prefix
	})
	return out, nil
}

// Advertisements lists every advertised prefix.
func (c *StateDBClient) Advertisements() ([]netip.Prefix, error) {
	keys, err := scanKeys(c.ctx, c.client, AdvertiseTable+tableSep+"*", 1000)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", AdvertiseTable, err)
	}
	out := make([]netip.Prefix, 0, len(keys))
	for _, key := range keys {
		p, err := netip.ParsePrefix(strings.TrimPrefix(key, AdvertiseTable+tableSep))
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// StateKey returns the STATE_DB key carrying the state of a monitor session.
func StateKey(key vnet.MonitorKey) string {
	if key.Mode == vnet.MonitorCustom {
		return tableKey(tableSep, MonitorTable, key.Addr.String(), key.Prefix.String())
	}
	return tableKey(tableSep, BFDSessionTable, "default", "default", key.Addr.String())
}

// ParseStateKey recovers the monitor session from a STATE_DB key.
func ParseStateKey(key string) (vnet.MonitorKey, bool) {
	parts := strings.Split(key, tableSep)
	switch {
	case len(parts) == 4 && parts[0] == BFDSessionTable:
		addr, err := netip.ParseAddr(parts[3])
		if err != nil {
			return vnet.MonitorKey{}, false
		}
		return vnet.MonitorKey{Mode: vnet.MonitorBFD, Addr: addr}, true
	case len(parts) == 3 && parts[0] == MonitorTable:
		addr, err := netip.ParseAddr(parts[1])
		if err != nil {
			return vnet.MonitorKey{}, false
		}
		prefix, err := netip.ParsePrefix(parts[2])
		if err != nil {
			return vnet.MonitorKey{}, false
		}
		return vnet.MonitorKey{Mode: vnet.MonitorCustom, Addr: addr, Prefix: prefix.Masked()}, true
	}
	return vnet.MonitorKey{}, false
}

// SessionState reads the state of one monitor session. A missing entry is
// Unknown.
func (c *StateDBClient) SessionState(key vnet.MonitorKey) (vnet.Liveness, error) {
	vals, err := c.hash(StateKey(key))
	if err != nil {
		return vnet.Unknown, err
	}
	return vnet.ParseLiveness(vals["state"]), nil
}

// SessionStates reads the state of every BFD and custom monitor session.
func (c *StateDBClient) SessionStates() (map[vnet.MonitorKey]vnet.Liveness, error) {
	out := make(map[vnet.MonitorKey]vnet.Liveness)
	for _, pattern := range []string{BFDSessionTable + tableSep + "*", MonitorTable + tableSep + "*"} {
		keys, err := scanKeys(c.ctx, c.client, pattern, 1000)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", pattern, err)
		}
		for _, key := range keys {
			mk, ok := ParseStateKey(key)
			if !ok {
				continue
			}
			state, err := c.client.HGet(c.ctx, key, "state").Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("reading state_db %s: %w", key, err)
			}
			out[mk] = vnet.ParseLiveness(state)
		}
	}
	return out, nil
}

// ============================================================================
// Object ownership
// ============================================================================

// Own records an ASIC object created by this daemon in
// VNETORCH_OBJECT_TABLE|<object type>. It implements asic.Ledger.
func (c *StateDBClient) Own(t asic.ObjectType, id string) error {
	key := tableKey(tableSep, ownedTable, string(t))
	if err := c.client.HSet(c.ctx, key, id, time.Now().UTC().Format(time.RFC3339)).Err(); err != nil {
		return fmt.Errorf("recording %s %s: %w", t, id, err)
	}
	return nil
}

// Disown forgets an object.
func (c *StateDBClient) Disown(t asic.ObjectType, id string) error {
	key := tableKey(tableSep, ownedTable, string(t))
	if err := c.client.HDel(c.ctx, key, id).Err(); err != nil {
		return fmt.Errorf("forgetting %s %s: %w", t, id, err)
	}
	return nil
}

// Owned lists the recorded objects of type t, sorted.
func (c *StateDBClient) Owned(t asic.ObjectType) ([]string, error) {
	ids, err := c.client.HKeys(c.ctx, tableKey(tableSep, ownedTable, string(t))).Result()
	if err != nil {
		return nil, fmt.Errorf("reading owned %s: %w", t, err)
	}
	sort.Strings(ids)
	return ids, nil
}

// ============================================================================
// Instance lock
// ============================================================================

// acquireLockScript is a Lua script for atomic lock acquisition in STATE_DB.
// Returns 1 on success, 0 if already locked by another holder. A holder may
// re-acquire its own lock, which extends the TTL.
var acquireLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 and redis.call("HGET", key, "holder") ~= ARGV[1] then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2], "ttl", ARGV[3])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

// releaseLockScript is a Lua script for atomic lock release with holder verification.
// Returns 1 on success, 0 if holder mismatch, -1 if key doesn't exist.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
local current = redis.call("HGET", key, "holder")
if current ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// AcquireLock takes the single-writer lock VNETORCH_LOCK|<name> for holder.
// Returns util.ErrLocked if another holder owns it.
func (c *StateDBClient) AcquireLock(name, holder string, ttl time.Duration) error {
	key := tableKey(tableSep, lockTable, name)
	now := time.Now().UTC().Format(time.RFC3339)
	secs := int(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}

	result, err := acquireLockScript.Run(c.ctx, c.client, []string{key},
		holder, now, fmt.Sprintf("%d", secs)).Int()
	if err != nil {
		return fmt.Errorf("acquiring lock %s: %w", name, err)
	}
	if result == 0 {
		return fmt.Errorf("lock %s: %w", name, util.ErrLocked)
	}
	return nil
}

// ReleaseLock releases the lock. Returns an error if the holder does not
// match the current lock holder.
func (c *StateDBClient) ReleaseLock(name, holder string) error {
	key := tableKey(tableSep, lockTable, name)

	result, err := releaseLockScript.Run(c.ctx, c.client, []string{key}, holder).Int()
	if err != nil {
		return fmt.Errorf("releasing lock %s: %w", name, err)
	}
	if result == 0 {
		return fmt.Errorf("lock holder mismatch for %s", name)
	}
	return nil
}
