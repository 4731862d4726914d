package presence

import (
	"context"
	"errors"

	"github.com/zfogg/beacon/internal/cache"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/telemetry"
	"go.uber.org/zap"
)

const (
	userKeyPrefix   = "presence:user:"
	handleKeyPrefix = "presence:handle:"
)

// KEYS[1] user key, KEYS[2] handle key; ARGV[1] user id, ARGV[2] handle id
var registerScript = cache.NewScript(`
local old = redis.call('GET', KEYS[1])
if old and old ~= ARGV[2] then
	local hk = ARGV[3] .. old
	if redis.call('GET', hk) == ARGV[1] then
		redis.call('DEL', hk)
	end
end
local prev = redis.call('GET', KEYS[2])
if prev and prev ~= ARGV[1] then
	local uk = ARGV[4] .. prev
	if redis.call('GET', uk) == ARGV[2] then
		redis.call('DEL', uk)
	end
end
redis.call('SET', KEYS[1], ARGV[2])
redis.call('SET', KEYS[2], ARGV[1])
return 1
`)

// KEYS[1] handle key; ARGV[1] user key prefix, ARGV[2] handle id
var unregisterScript = cache.NewScript(`
local user = redis.call('GET', KEYS[1])
if not user then
	return 0
end
redis.call('DEL', KEYS[1])
local uk = ARGV[1] .. user
if redis.call('GET', uk) == ARGV[2] then
	redis.call('DEL', uk)
	return 1
end
return 0
`)

// RedisRegistry stores presence in Redis so it survives process restarts and can
// be read by other processes. Register and Unregister run as Lua scripts to keep
// the compare-and-delete atomic.
type RedisRegistry struct {
	client *cache.RedisClient
}

// NewRedisRegistry creates a Redis-backed registry
func NewRedisRegistry(client *cache.RedisClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Register(ctx context.Context, userID, handleID string) error {
	if userID == "" || handleID == "" {
		return ErrEmptyID
	}
	ctx, span := telemetry.TraceStoreCall(ctx, "redis", "presence.register")
	defer span.End()
	telemetry.SetUserContext(span, userID)

	_, err := r.client.Run(ctx, registerScript,
		[]string{userKeyPrefix + userID, handleKeyPrefix + handleID},
		userID, handleID, handleKeyPrefix, userKeyPrefix,
	)
	telemetry.RecordError(span, err)
	return err
}

func (r *RedisRegistry) Unregister(ctx context.Context, handleID string) error {
	_, err := r.client.Run(ctx, unregisterScript,
		[]string{handleKeyPrefix + handleID},
		userKeyPrefix, handleID,
	)
	return err
}

// Lookup treats Redis errors as absence; callers only use presence to decide
// whether to attempt a live push
func (r *RedisRegistry) Lookup(ctx context.Context, userID string) (string, bool) {
	h, err := r.client.Get(ctx, userKeyPrefix+userID)
	if err != nil {
		if !errors.Is(err, cache.Nil) {
			logger.Log.Warn("presence lookup failed", logger.WithUserID(userID), zap.Error(err))
		}
		return "", false
	}
	return h, true
}
