package sonic

import (
	"fmt"

	"github.com/newtron-network/vnetorch/pkg/util"
)

// DBNumbers selects the Redis database of each SONiC DB.
type DBNumbers struct {
	App    int
	Asic   int
	Config int
	State  int
}

// DefaultDBNumbers returns the standard SONiC layout.
func DefaultDBNumbers() DBNumbers {
	return DBNumbers{App: AppDB, Asic: AsicDB, Config: ConfigDB, State: StateDB}
}

// Options configure Open.
type Options struct {
	Addr string     // Redis address, ignored when SSH is set
	DBs  DBNumbers
	SSH  *SSHConfig // reach Redis through an SSH tunnel
	// SkipAsic leaves the ASIC_DB client unconnected (dry runs, read-only
	// tools that never touch ASIC_DB).
	SkipAsic bool
}

// Conn holds one client per SONiC database.
type Conn struct {
	App    *AppDBClient
	Asic   *AsicDBClient
	Config *ConfigDBClient
	State  *StateDBClient

	tunnel *SSHTunnel
}

// Open connects to every database. Any failure closes what was opened.
func Open(opts Options) (*Conn, error) {
	c := &Conn{}
	addr := opts.Addr
	if opts.SSH != nil {
		tun, err := NewSSHTunnel(*opts.SSH)
		if err != nil {
			return nil, fmt.Errorf("SSH tunnel to %s: %w", opts.SSH.Host, err)
		}
		c.tunnel = tun
		addr = tun.LocalAddr()
	}
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	c.Config = NewConfigDBClient(addr, opts.DBs.Config)
	if err := c.Config.Connect(); err != nil {
		c.Close()
		return nil, fmt.Errorf("connecting to config_db at %s: %w", addr, err)
	}
	c.App = NewAppDBClient(addr, opts.DBs.App)
	if err := c.App.Connect(); err != nil {
		c.Close()
		return nil, fmt.Errorf("connecting to app_db at %s: %w", addr, err)
	}
	c.State = NewStateDBClient(addr, opts.DBs.State)
	if err := c.State.Connect(); err != nil {
		c.Close()
		return nil, fmt.Errorf("connecting to state_db at %s: %w", addr, err)
	}
	if !opts.SkipAsic {
		c.Asic = NewAsicDBClient(addr, opts.DBs.Asic)
		if err := c.Asic.Connect(); err != nil {
			c.Close()
			return nil, fmt.Errorf("connecting to asic_db at %s: %w", addr, err)
		}
	}

	util.WithField("addr", addr).Info("Connected")
	return c, nil
}

// Close closes every client and the tunnel.
func (c *Conn) Close() error {
	if c.App != nil {
		c.App.Close()
	}
	if c.Asic != nil {
		c.Asic.Close()
	}
	if c.Config != nil {
		c.Config.Close()
	}
	if c.State != nil {
		c.State.Close()
	}
	if c.tunnel != nil {
		return c.tunnel.Close()
	}
	return nil
}
