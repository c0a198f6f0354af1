package ghost

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores serialized ghost-trade results with a TTL. It lives in its
// own throwaway database: losing it costs recomputation, nothing else, so
// every failure here degrades to a miss instead of an error.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	log zerolog.Logger
	now func() time.Time
}

// NewCache creates a ghost-trade cache on the given cache database.
func NewCache(db *sql.DB, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("repo", "ghost_cache").Logger(),
		now: time.Now,
	}
}

// Get returns the cached result for (player, key), or a miss. Expired rows
// are evicted on the way. Hits bump the row's hit counter.
func (c *Cache) Get(ctx context.Context, playerID, key string) (*Result, bool) {
	var payload []byte
	var expiresAt string
	err := c.db.QueryRowContext(ctx, `
		SELECT payload, expires_at FROM ghost_trade_cache
		WHERE player_id = ? AND cache_key = ?`,
		playerID, key,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("Cache read failed, treating as miss")
		return nil, false
	}

	expiry, err := time.Parse(time.RFC3339Nano, expiresAt)
	if err != nil || !c.now().Before(expiry) {
		c.evict(ctx, playerID, key)
		return nil, false
	}

	var result Result
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		c.log.Warn().Err(err).Msg("Cache payload corrupt, evicting")
		c.evict(ctx, playerID, key)
		return nil, false
	}

	if _, err := c.db.ExecContext(ctx, `
		UPDATE ghost_trade_cache SET hit_count = hit_count + 1
		WHERE player_id = ? AND cache_key = ?`,
		playerID, key,
	); err != nil {
		c.log.Warn().Err(err).Msg("Failed to bump cache hit count")
	}

	// msgpack decodes timestamps into the local zone; renormalize so a
	// replayed result serializes exactly like the original.
	result.EvaluatedAt = result.EvaluatedAt.UTC()
	result.Cached = true
	return &result, true
}

// Put stores a result under (player, key) for the configured TTL.
func (c *Cache) Put(ctx context.Context, playerID, key string, result *Result) {
	payload, err := msgpack.Marshal(result)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to encode cache payload")
		return
	}

	now := c.now().UTC()
	if _, err := c.db.ExecContext(ctx, `
		INSERT INTO ghost_trade_cache (player_id, cache_key, payload, created_at, expires_at, hit_count)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT (player_id, cache_key) DO UPDATE SET
			payload    = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			hit_count  = 0`,
		playerID, key, payload,
		now.Format(time.RFC3339Nano),
		now.Add(c.ttl).Format(time.RFC3339Nano),
	); err != nil {
		c.log.Warn().Err(err).Msg("Cache write failed")
	}
}

// HitCount returns the recorded hit count for a cache row, 0 if absent.
func (c *Cache) HitCount(ctx context.Context, playerID, key string) (int, error) {
	var hits int
	err := c.db.QueryRowContext(ctx, `
		SELECT hit_count FROM ghost_trade_cache
		WHERE player_id = ? AND cache_key = ?`,
		playerID, key,
	).Scan(&hits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return hits, err
}

// Sweep removes every expired row and returns how many went.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM ghost_trade_cache WHERE expires_at <= ?`,
		c.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *Cache) evict(ctx context.Context, playerID, key string) {
	if _, err := c.db.ExecContext(ctx, `
		DELETE FROM ghost_trade_cache WHERE player_id = ? AND cache_key = ?`,
		playerID, key,
	); err != nil {
		c.log.Warn().Err(err).Msg("Cache eviction failed")
	}
}
