package credential

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const (
	fieldDigest  = "digest"
	fieldVersion = "version"
)

// swapScript はversionが一致する場合のみダイジェストを置き換える。
var swapScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'version')
if not v or tonumber(v) ~= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'digest', ARGV[2])
redis.call('HINCRBY', KEYS[1], 'version', 1)
return 1
`)

// clearScript はキーが存在する場合のみダイジェストを消去する。
var clearScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'digest', '')
redis.call('HINCRBY', KEYS[1], 'version', 1)
return 1
`)

// RedisSessions はRedisハッシュを使ったSessionRepositoryの実装。
// キーは "<prefix>session:<identityID>"、フィールドは digest と version。
type RedisSessions struct {
	client *redis.Client
	prefix string
}

var _ SessionRepository = (*RedisSessions)(nil)

// NewRedisSessions はRedisに接続し、疎通を確認してからRedisSessionsを返す。
func NewRedisSessions(ctx context.Context, addr, password, prefix string) (*RedisSessions, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	return &RedisSessions{client: client, prefix: prefix}, nil
}

// Close はRedis接続を閉じる。
func (r *RedisSessions) Close() error {
	return r.client.Close()
}

func (r *RedisSessions) key(identityID string) string {
	return r.prefix + "session:" + identityID
}

// Session はセッション状態を取得する。
func (r *RedisSessions) Session(ctx context.Context, identityID string) (Session, error) {
	values, err := r.client.HGetAll(ctx, r.key(identityID)).Result()
	if err != nil {
		return Session{}, fmt.Errorf("セッションの取得に失敗: %w", err)
	}
	if len(values) == 0 {
		return Session{}, ErrNotFound
	}

	version, err := strconv.ParseInt(values[fieldVersion], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("セッションのversionが不正です: %w", err)
	}
	return Session{
		IdentityID:    identityID,
		RenewalDigest: values[fieldDigest],
		Version:       version,
	}, nil
}

// PutSession はダイジェストを無条件に上書きする。
func (r *RedisSessions) PutSession(ctx context.Context, identityID, digest string) error {
	key := r.key(identityID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldDigest, digest)
		pipe.HIncrBy(ctx, key, fieldVersion, 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("セッションの保存に失敗: %w", err)
	}
	return nil
}

// SwapSession はversionが一致する場合のみダイジェストを置き換える。
func (r *RedisSessions) SwapSession(ctx context.Context, identityID string, version int64, digest string) error {
	swapped, err := swapScript.Run(ctx, r.client, []string{r.key(identityID)}, version, digest).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("セッションの更新に失敗: %w", err)
	}
	if swapped != 1 {
		return ErrVersionConflict
	}
	return nil
}

// ClearSession はダイジェストを消去する。
func (r *RedisSessions) ClearSession(ctx context.Context, identityID string) error {
	if err := clearScript.Run(ctx, r.client, []string{r.key(identityID)}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("セッションの消去に失敗: %w", err)
	}
	return nil
}
