//go:build integration

// Package testutil provides helpers for tests that run against a real Redis
// laid out like a SONiC switch (APP_DB 0, ASIC_DB 1, CONFIG_DB 4, STATE_DB 6).
package testutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// SONiC database numbers used by the seed files.
const (
	AppDB    = 0
	AsicDB   = 1
	ConfigDB = 4
	StateDB  = 6
)

// RedisAddr returns the address of the test Redis container (IP:port).
// It first checks VNETORCH_TEST_REDIS_ADDR, then discovers the Docker container IP.
func RedisAddr() string {
	if addr := os.Getenv("VNETORCH_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}

	ip := redisContainerIP()
	if ip == "" {
		return ""
	}
	return ip + ":6379"
}

func redisContainerIP() string {
	out, err := exec.Command("docker", "inspect",
		"--format", "{{range .NetworkSettings.Networks}}{{.IPAddress}}{{end}}",
		"vnetorch-test-redis").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// SkipIfNoRedis skips the test if the test Redis container is not reachable.
func SkipIfNoRedis(t *testing.T) {
	t.Helper()

	addr := RedisAddr()
	if addr == "" {
		t.Skip("test Redis not available: set VNETORCH_TEST_REDIS_ADDR")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("test Redis not reachable at %s: %v", addr, err)
	}
}

// Reset skips the test without Redis, otherwise empties the four SONiC
// databases and returns the Redis address.
func Reset(t *testing.T) string {
	t.Helper()
	SkipIfNoRedis(t)

	addr := RedisAddr()
	for _, db := range []int{AppDB, AsicDB, ConfigDB, StateDB} {
		FlushDB(t, addr, db)
	}
	return addr
}

// SeedPath returns the absolute path to a seed file under testdata/.
func SeedPath(name string) string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "testdata", name)
}

// SeedSwitch loads the VXLAN tunnel and VNET configuration into CONFIG_DB
// and the three-endpoint route intent into APP_DB.
func SeedSwitch(t *testing.T, addr string) {
	t.Helper()
	SeedRedis(t, addr, ConfigDB, SeedPath("configdb.json"))
	SeedRedis(t, addr, AppDB, SeedPath("appdb.json"))
}

// KeyCount returns the number of keys matching pattern in db.
func KeyCount(t *testing.T, addr string, db int, pattern string) int {
	t.Helper()

	c := client(addr, db)
	defer c.Close()

	var n int
	iter := c.Scan(context.Background(), 0, pattern, 100).Iterator()
	for iter.Next(context.Background()) {
		n++
	}
	if err := iter.Err(); err != nil {
		t.Fatalf("scanning %s in DB %d: %v", pattern, db, err)
	}
	return n
}

// Context returns a context with a reasonable timeout for tests.
// The cancel function is registered via t.Cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// WaitFor polls cond every 50ms until it returns true or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", timeout, what)
}
