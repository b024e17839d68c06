package storage

import (
	"context"
	"strconv"
	"time"

	redissrv "NexusProject/service/storage/redis"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Mirror publishes per-user liveness into redis so CRUD-only nodes can answer
// "is this user online" without joining the relay. The in-process registry
// stays authoritative; the mirror is advisory and TTL-bounded.
//
// presence key: nexus:presence:<userId>, value: connection id.
type Mirror struct {
	ttl time.Duration
}

func NewMirror(ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Mirror{ttl: ttl}
}

func presenceKey(userID int64) string {
	return "nexus:presence:" + strconv.FormatInt(userID, 10)
}

// Renew or delete only when the stored connection id still matches, so a
// reconnect that replaced the entry is never clobbered by the old socket's
// late ticker or teardown.
const luaRenewIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return 0
`

const luaOfflineIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	renewScript   = redis.NewScript(luaRenewIfOwner)
	offlineScript = redis.NewScript(luaOfflineIfOwner)
)

// Online marks the user online under connID, replacing any previous owner.
func (m *Mirror) Online(ctx context.Context, userID int64, connID string) error {
	err := redissrv.Get().Set(ctx, presenceKey(userID), connID, m.ttl).Err()
	return errors.Wrap(err, "presence online")
}

// Renew extends the TTL if connID still owns the key.
func (m *Mirror) Renew(ctx context.Context, userID int64, connID string) error {
	ttlSec := int64(m.ttl / time.Second)
	err := renewScript.Run(ctx, redissrv.Get(), []string{presenceKey(userID)}, connID, ttlSec).Err()
	return errors.Wrap(err, "presence renew")
}

// Offline removes the key if connID still owns it. Idempotent.
func (m *Mirror) Offline(ctx context.Context, userID int64, connID string) error {
	err := offlineScript.Run(ctx, redissrv.Get(), []string{presenceKey(userID)}, connID).Err()
	return errors.Wrap(err, "presence offline")
}

// Lookup reports whether any node currently holds the user online.
func (m *Mirror) Lookup(ctx context.Context, userID int64) (connID string, online bool, err error) {
	val, err := redissrv.Get().Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "presence lookup")
	}
	return val, true, nil
}
