package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tidemark/internal/cursor"
)

// advanceScript performs the strictly-greater compare-and-swap server side so
// concurrent workers on different hosts cannot both win the same candle.
// KEYS[1] cursor key, ARGV[1] closeMs, ARGV[2] payload JSON.
var advanceScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if raw then
  local cur = cjson.decode(raw)
  if tonumber(ARGV[1]) <= tonumber(cur['last_processed_candle_close_ms']) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`)

// CursorStore keeps execution cursors as JSON values, one key per
// (bot, timeframe), plus a set index for List.
type CursorStore struct {
	rdb      *redis.Client
	prefix   string
	keyIndex string
}

func NewCursorStore(rdb *redis.Client, prefix string) *CursorStore {
	prefix = normalizePrefix(prefix)
	return &CursorStore{
		rdb:      rdb,
		prefix:   prefix,
		keyIndex: prefix + ":cursors",
	}
}

func (s *CursorStore) key(botID, timeframe string) string {
	return fmt.Sprintf("%s:cursor:%s:%s", s.prefix, botID, timeframe)
}

func (s *CursorStore) Get(ctx context.Context, botID, timeframe string) (cursor.Cursor, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(botID, timeframe)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cursor.Cursor{}, false, nil
	}
	if err != nil {
		return cursor.Cursor{}, false, fmt.Errorf("get cursor %s/%s: %w", botID, timeframe, err)
	}
	var c cursor.Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return cursor.Cursor{}, false, fmt.Errorf("decode cursor %s/%s: %w", botID, timeframe, err)
	}
	return c, true, nil
}

func (s *CursorStore) Advance(ctx context.Context, botID, timeframe string, closeMs, nowMs int64) (bool, error) {
	payload, err := json.Marshal(cursor.Cursor{
		BotID:                      botID,
		Timeframe:                  timeframe,
		LastProcessedCandleCloseMs: closeMs,
		UpdatedAtMs:                nowMs,
	})
	if err != nil {
		return false, fmt.Errorf("marshal cursor: %w", err)
	}
	key := s.key(botID, timeframe)
	n, err := advanceScript.Run(ctx, s.rdb, []string{key}, closeMs, payload).Int()
	if err != nil {
		return false, fmt.Errorf("advance cursor %s/%s: %w", botID, timeframe, err)
	}
	if n == 0 {
		return false, nil
	}
	if err := s.rdb.SAdd(ctx, s.keyIndex, key).Err(); err != nil {
		return false, fmt.Errorf("index cursor %s/%s: %w", botID, timeframe, err)
	}
	return true, nil
}

func (s *CursorStore) List(ctx context.Context) ([]cursor.Cursor, error) {
	keys, err := s.rdb.SMembers(ctx, s.keyIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	out := make([]cursor.Cursor, 0, len(keys))
	for _, key := range keys {
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get cursor %s: %w", key, err)
		}
		var c cursor.Cursor
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode cursor %s: %w", key, err)
		}
		out = append(out, c)
	}
	return out, nil
}
