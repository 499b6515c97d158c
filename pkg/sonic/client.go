// Package sonic reads and writes the SONiC Redis databases the reconciler
// consumes and produces: APP_DB (0), ASIC_DB (1), CONFIG_DB (4) and STATE_DB (6).
package sonic

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

// Default database numbers.
const (
	AppDB    = 0
	AsicDB   = 1
	ConfigDB = 4
	StateDB  = 6
)

// Key separators. APP_DB uses ':', CONFIG_DB and STATE_DB use '|'.
const (
	appSep   = ":"
	tableSep = "|"
)

// dbClient is the connection shared by the per-database clients.
type dbClient struct {
	client *redis.Client
	ctx    context.Context
	db     int
	name   string
}

func newDBClient(addr string, db int, name string) dbClient {
	return dbClient{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
		ctx:  context.Background(),
		db:   db,
		name: name,
	}
}

// Connect tests the connection.
func (c *dbClient) Connect() error {
	if err := c.client.Ping(c.ctx).Err(); err != nil {
		return fmt.Errorf("%s ping: %w", c.name, err)
	}
	return nil
}

// Close closes the connection.
func (c *dbClient) Close() error {
	return c.client.Close()
}

// Redis exposes the underlying client, used by the keyspace watcher.
func (c *dbClient) Redis() *redis.Client { return c.client }

// DB returns the database number.
func (c *dbClient) DB() int { return c.db }

// hash returns the fields of key, or nil if it does not exist.
func (c *dbClient) hash(key string) (map[string]string, error) {
	vals, err := c.client.HGetAll(c.ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s %s: %w", c.name, key, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals, nil
}

// set writes all fields of key in a single HSET so consumers see exactly one
// keyspace notification. An empty field map writes the NULL sentinel.
func (c *dbClient) set(key string, fields map[string]string) error {
	if err := c.client.HSet(c.ctx, key, hsetArgs(fields)...).Err(); err != nil {
		return fmt.Errorf("writing %s %s: %w", c.name, key, err)
	}
	return nil
}

// replace deletes key and writes fields in one transaction, dropping fields
// absent from the new set.
func (c *dbClient) replace(key string, fields map[string]string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(c.ctx, key)
	pipe.HSet(c.ctx, key, hsetArgs(fields)...)
	if _, err := pipe.Exec(c.ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("writing %s %s: %w", c.name, key, err)
	}
	return nil
}

func (c *dbClient) del(key string) error {
	if err := c.client.Del(c.ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting %s %s: %w", c.name, key, err)
	}
	return nil
}

func hsetArgs(fields map[string]string) []interface{} {
	if len(fields) == 0 {
		return []interface{}{"NULL", "NULL"}
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

// dropNull removes the NULL sentinel written for field-less entries.
func dropNull(vals map[string]string) map[string]string {
	delete(vals, "NULL")
	return vals
}

// scanKeys iterates Redis keys matching the given pattern using cursor-based
// SCAN instead of the blocking O(N) KEYS command. The count hint controls
// how many keys Redis returns per iteration (not an exact limit).
func scanKeys(ctx context.Context, client *redis.Client, pattern string, countHint int64) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, nextCursor, err := client.Scan(ctx, cursor, pattern, countHint).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// tableKey joins a table name and key parts with sep.
func tableKey(sep, table string, parts ...string) string {
	return table + sep + strings.Join(parts, sep)
}
