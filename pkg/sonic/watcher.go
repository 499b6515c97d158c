package sonic

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/vnetorch/pkg/util"
)

// notificationBuffer is how many notifications may queue while a consumer
// is busy, such as during the initial sync.
const notificationBuffer = 4096

// Notification is one keyspace event: the key that changed and the command
// that changed it ("hset", "del", "expired", ...).
type Notification struct {
	DB  int
	Key string
	Op  string
}

// Deleted reports whether the key no longer exists after this event.
func (n Notification) Deleted() bool {
	switch n.Op {
	case "del", "expired", "evicted":
		return true
	}
	return false
}

// KeyspaceChannel returns the keyspace notification pattern for keys
// matching pattern in db.
func KeyspaceChannel(db int, pattern string) string {
	return fmt.Sprintf("__keyspace@%d__:%s", db, pattern)
}

// ParseKeyspaceChannel splits a keyspace channel into db and key.
func ParseKeyspaceChannel(channel string) (db int, key string, ok bool) {
	rest, found := strings.CutPrefix(channel, "__keyspace@")
	if !found {
		return 0, "", false
	}
	dbStr, key, found := strings.Cut(rest, "__:")
	if !found {
		return 0, "", false
	}
	if _, err := fmt.Sscanf(dbStr, "%d", &db); err != nil {
		return 0, "", false
	}
	return db, key, true
}

// Subscription is an open keyspace subscription on one database.
type Subscription struct {
	name string
	ps   *redis.PubSub
}

// Subscribe enables keyspace notifications and subscribes to the given key
// patterns on c's database. It returns once the server has confirmed the
// subscription, so every change made after Subscribe returns is delivered
// by Run.
func (c *dbClient) Subscribe(ctx context.Context, patterns []string) (*Subscription, error) {
	if err := c.enableNotifications(ctx); err != nil {
		return nil, err
	}
	channels := make([]string, len(patterns))
	for i, p := range patterns {
		channels[i] = KeyspaceChannel(c.db, p)
	}
	ps := c.client.PSubscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("%s psubscribe: %w", c.name, err)
	}
	util.WithFields(map[string]interface{}{"db": c.name, "patterns": patterns}).Debug("watching keyspace")
	return &Subscription{name: c.name, ps: ps}, nil
}

// Run calls fn for each notification until ctx is cancelled. fn runs on
// Run's goroutine, in delivery order.
func (s *Subscription) Run(ctx context.Context, fn func(Notification)) error {
	ch := s.ps.Channel(redis.WithChannelSize(notificationBuffer))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("%s: subscription closed", s.name)
			}
			db, key, ok := ParseKeyspaceChannel(msg.Channel)
			if !ok {
				continue
			}
			fn(Notification{DB: db, Key: key, Op: msg.Payload})
		}
	}
}

// Close ends the subscription.
func (s *Subscription) Close() error {
	return s.ps.Close()
}

func (c *dbClient) enableNotifications(ctx context.Context) error {
	cur, err := c.client.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		// CONFIG may be renamed or disabled; assume the server is set up.
		util.WithField("db", c.name).Debugf("CONFIG GET notify-keyspace-events: %v", err)
		return nil
	}
	if len(cur) == 2 {
		v, _ := cur[1].(string)
		hashes := strings.Contains(v, "A") || (strings.Contains(v, "g") && strings.Contains(v, "h"))
		if strings.Contains(v, "K") && hashes {
			return nil
		}
	}
	if err := c.client.ConfigSet(ctx, "notify-keyspace-events", "KEA").Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("%s: enabling keyspace notifications: %w", c.name, err)
	}
	return nil
}
