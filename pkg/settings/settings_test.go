package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/vnetorch/pkg/util"
)

func TestSettings_Defaults(t *testing.T) {
	s := Default()

	want := &Settings{
		RedisAddr:     DefaultRedisAddr,
		Databases:     Databases{App: 0, Asic: 1, Config: 4, State: 6},
		MetricsAddr:   DefaultMetricsAddr,
		AuditLog:      DefaultAuditLog,
		LogLevel:      "info",
		LoopQueueSize: 1024,
		LockTTL:       30 * time.Second,
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("Default() (-want +got):\n%s", diff)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSettings_LoadMissingFile(t *testing.T) {
	s, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if diff := cmp.Diff(Default(), s); diff != "" {
		t.Errorf("missing file should give defaults (-want +got):\n%s", diff)
	}
}

func TestSettings_LoadPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vnetorchd.yaml")
	data := `
redis_addr: 10.0.0.1:6379
databases:
  app: 0
  asic: 1
  config: 4
  state: 6
ordered_ecmp: true
max_nexthop_groups: 512
log_level: debug
lock_ttl: 10s
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if s.RedisAddr != "10.0.0.1:6379" || !s.OrderedECMP || s.MaxNextHopGroups != 512 {
		t.Errorf("loaded = %+v", s)
	}
	if s.LogLevel != "debug" || s.LockTTL != 10*time.Second {
		t.Errorf("log_level/lock_ttl = %s/%v", s.LogLevel, s.LockTTL)
	}
	// Unset fields keep their defaults.
	if s.MetricsAddr != DefaultMetricsAddr || s.LoopQueueSize != DefaultLoopQueueSize {
		t.Errorf("defaults not applied: %+v", s)
	}
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"bad db", func(s *Settings) { s.Databases.State = 16 }},
		{"negative groups", func(s *Settings) { s.MaxNextHopGroups = -1 }},
		{"bad level", func(s *Settings) { s.LogLevel = "loud" }},
		{"short lock", func(s *Settings) { s.LockTTL = time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(s)
			err := s.Validate()
			if !errors.Is(err, util.ErrValidationFailed) {
				t.Errorf("Validate() = %v, want validation error", err)
			}
		})
	}
}

func TestSettings_LoadInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{
		"syntax.yaml": "redis_addr: [",
		"range.yaml":  "databases:\n  app: 99\n",
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFrom(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSettings_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "vnetorchd.yaml")

	original := Default()
	original.RedisAddr = "192.168.1.1:6379"
	original.MaxNextHopGroups = 128
	original.LogJSON = true

	if err := original.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() failed: %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if diff := cmp.Diff(original, loaded); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}
