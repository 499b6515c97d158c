// Package settings loads the vnetorchd configuration file.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/newtron-network/vnetorch/pkg/util"
)

// Databases selects the Redis database number of each SONiC DB.
type Databases struct {
	App    int `yaml:"app"`
	Asic   int `yaml:"asic"`
	Config int `yaml:"config"`
	State  int `yaml:"state"`
}

// Settings holds the daemon configuration
type Settings struct {
	// RedisAddr is the switch Redis endpoint
	RedisAddr string    `yaml:"redis_addr,omitempty"`
	Databases Databases `yaml:"databases"`

	// OrderedECMP is the initial ordered ECMP mode; APP_DB SWITCH_TABLE
	// overrides it once read.
	OrderedECMP bool `yaml:"ordered_ecmp,omitempty"`

	// MaxNextHopGroups caps group allocation; 0 means the switch limit
	// published in STATE_DB, or unlimited if none is published.
	MaxNextHopGroups int `yaml:"max_nexthop_groups,omitempty"`

	MetricsAddr   string        `yaml:"metrics_addr,omitempty"`
	AuditLog      string        `yaml:"audit_log,omitempty"`
	LogLevel      string        `yaml:"log_level,omitempty"`
	LogJSON       bool          `yaml:"log_json,omitempty"`
	LoopQueueSize int           `yaml:"loop_queue_size,omitempty"`
	LockTTL       time.Duration `yaml:"lock_ttl,omitempty"`
}

// Defaults
const (
	DefaultRedisAddr     = "127.0.0.1:6379"
	DefaultMetricsAddr   = ":9112"
	DefaultAuditLog      = "/var/log/vnetorch/transitions.jsonl"
	DefaultLogLevel      = "info"
	DefaultLoopQueueSize = 1024
	DefaultLockTTL       = 30 * time.Second
)

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	if p := os.Getenv("VNETORCH_CONFIG"); p != "" {
		return p
	}
	return "/etc/vnetorch/vnetorchd.yaml"
}

// Default returns settings with every default applied.
func Default() *Settings {
	s := &Settings{Databases: Databases{App: 0, Asic: 1, Config: 4, State: 6}}
	s.ApplyDefaults()
	return s
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path. A missing file yields the
// defaults.
func LoadFrom(path string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// ApplyDefaults fills unset fields.
func (s *Settings) ApplyDefaults() {
	if s.RedisAddr == "" {
		s.RedisAddr = DefaultRedisAddr
	}
	if s.MetricsAddr == "" {
		s.MetricsAddr = DefaultMetricsAddr
	}
	if s.AuditLog == "" {
		s.AuditLog = DefaultAuditLog
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.LoopQueueSize == 0 {
		s.LoopQueueSize = DefaultLoopQueueSize
	}
	if s.LockTTL == 0 {
		s.LockTTL = DefaultLockTTL
	}
}

// Validate checks ranges and the log level.
func (s *Settings) Validate() error {
	v := &util.ValidationBuilder{}
	for name, db := range map[string]int{
		"databases.app":    s.Databases.App,
		"databases.asic":   s.Databases.Asic,
		"databases.config": s.Databases.Config,
		"databases.state":  s.Databases.State,
	} {
		v.Add(db >= 0 && db <= 15, fmt.Sprintf("%s: %d out of range 0-15", name, db))
	}
	v.Add(s.MaxNextHopGroups >= 0, "max_nexthop_groups must not be negative")
	v.Add(s.LoopQueueSize > 0, "loop_queue_size must be positive")
	v.Add(s.LockTTL >= time.Second, "lock_ttl must be at least 1s")
	if _, err := logrus.ParseLevel(s.LogLevel); err != nil {
		v.AddErrorf("log_level: %v", err)
	}
	return v.Build()
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
