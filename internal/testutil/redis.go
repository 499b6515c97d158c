//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
)

// separator returns the table/key separator SONiC uses in db: ':' for
// APP_DB and ASIC_DB, '|' elsewhere.
func separator(db int) string {
	if db == AppDB || db == AsicDB {
		return ":"
	}
	return "|"
}

func client(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, DB: db})
}

// SeedRedis loads a JSON seed file into a specific Redis database.
// The JSON format is: { "TABLE": { "key": { "field": "value", ... }, ... }, ... }
// Each entry becomes a Redis hash at key "TABLE<sep>key" with the given fields.
func SeedRedis(t *testing.T, addr string, db int, seedFile string) {
	t.Helper()

	data, err := os.ReadFile(seedFile)
	if err != nil {
		t.Fatalf("reading seed file %s: %v", seedFile, err)
	}

	var tables map[string]map[string]map[string]string
	if err := json.Unmarshal(data, &tables); err != nil {
		t.Fatalf("parsing seed file %s: %v", seedFile, err)
	}

	for table, entries := range tables {
		for key, fields := range entries {
			WriteEntry(t, addr, db, table, key, fields)
		}
	}
}

// FlushDB flushes a specific Redis database.
func FlushDB(t *testing.T, addr string, db int) {
	t.Helper()

	c := client(addr, db)
	defer c.Close()

	if err := c.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing DB %d: %v", db, err)
	}
}

// WriteEntry writes one hash entry. An empty field map writes the NULL
// sentinel, as SONiC does for field-less entries.
func WriteEntry(t *testing.T, addr string, db int, table, key string, fields map[string]string) {
	t.Helper()

	c := client(addr, db)
	defer c.Close()

	redisKey := table + separator(db) + key
	args := []interface{}{"NULL", "NULL"}
	if len(fields) > 0 {
		args = make([]interface{}, 0, len(fields)*2)
		for k, v := range fields {
			args = append(args, k, v)
		}
	}
	if err := c.HSet(context.Background(), redisKey, args...).Err(); err != nil {
		t.Fatalf("writing %s: %v", redisKey, err)
	}
}

// DeleteEntry removes a key from a specific Redis DB.
func DeleteEntry(t *testing.T, addr string, db int, table, key string) {
	t.Helper()

	c := client(addr, db)
	defer c.Close()

	redisKey := table + separator(db) + key
	if err := c.Del(context.Background(), redisKey).Err(); err != nil {
		t.Fatalf("deleting %s: %v", redisKey, err)
	}
}

// ReadEntry reads a hash entry; a missing key yields an empty map.
func ReadEntry(t *testing.T, addr string, db int, table, key string) map[string]string {
	t.Helper()

	c := client(addr, db)
	defer c.Close()

	redisKey := table + separator(db) + key
	vals, err := c.HGetAll(context.Background(), redisKey).Result()
	if err != nil {
		t.Fatalf("reading %s: %v", redisKey, err)
	}
	return vals
}

// EntryExists checks if a key exists in a specific Redis DB.
func EntryExists(t *testing.T, addr string, db int, table, key string) bool {
	t.Helper()

	c := client(addr, db)
	defer c.Close()

	redisKey := table + separator(db) + key
	n, err := c.Exists(context.Background(), redisKey).Result()
	if err != nil {
		t.Fatalf("checking %s: %v", redisKey, err)
	}
	return n > 0
}
