// Package redis provides a Redis implementation of the ledger port, for
// deployments where several gateway processes share one quota store.
//
// Records live in one sorted set per identity, scored by occurrence time
// in unix milliseconds. Sub-millisecond window boundaries are therefore
// coarsened to the millisecond; the SQLite backend keeps nanosecond
// resolution.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artpar/tokengate/domain/usage"
	"github.com/artpar/tokengate/ports"
)

// LedgerStore implements ports.LedgerStore on Redis sorted sets.
type LedgerStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration // per-identity key TTL; 0 leaves keys to the sweeper
}

// Option configures a LedgerStore.
type Option func(*LedgerStore)

// WithPrefix sets the key prefix (default "tokengate").
func WithPrefix(prefix string) Option {
	return func(s *LedgerStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithTTL makes identity keys expire after d of inactivity. Must exceed
// the retention horizon or the sweeper's counts will undercount.
func WithTTL(d time.Duration) Option {
	return func(s *LedgerStore) { s.ttl = d }
}

// NewLedgerStore creates a Redis-backed ledger store.
func NewLedgerStore(rdb *redis.Client, opts ...Option) *LedgerStore {
	s := &LedgerStore{
		rdb:    rdb,
		prefix: "tokengate",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerStore) ledgerKey(identity string) string {
	return s.prefix + ":ledger:" + identity
}

func (s *LedgerStore) identitiesKey() string {
	return s.prefix + ":identities"
}

// encodeMember packs a record into a sorted-set member. Tokens go first so
// the sum path can parse them without caring what the rest contains.
func encodeMember(rec usage.Record) string {
	return strconv.FormatInt(rec.Tokens, 10) + "|" + rec.Model + "|" + rec.Endpoint + "|" + rec.ID
}

// memberTokens extracts the token count from a member.
func memberTokens(member string) (int64, error) {
	head, _, ok := strings.Cut(member, "|")
	if !ok {
		return 0, fmt.Errorf("malformed ledger member %q", member)
	}
	return strconv.ParseInt(head, 10, 64)
}

// exclusiveMin formats a strict lower score bound.
func exclusiveMin(t time.Time) string {
	return "(" + strconv.FormatInt(t.UnixMilli(), 10)
}

// Append stores one usage record.
func (s *LedgerStore) Append(ctx context.Context, rec usage.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	key := s.ledgerKey(rec.Identity)
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(rec.OccurredAt.UnixMilli()),
		Member: encodeMember(rec),
	})
	pipe.SAdd(ctx, s.identitiesKey(), rec.Identity)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: append usage record: %v", ports.ErrStorageUnavailable, err)
	}
	return nil
}

// SumSince returns total tokens for an identity strictly after since.
func (s *LedgerStore) SumSince(ctx context.Context, identity string, since time.Time) (int64, error) {
	members, err := s.rdb.ZRangeByScore(ctx, s.ledgerKey(identity), &redis.ZRangeBy{
		Min: exclusiveMin(since),
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: sum usage: %v", ports.ErrStorageUnavailable, err)
	}

	var total int64
	for _, m := range members {
		tokens, err := memberTokens(m)
		if err != nil {
			return 0, fmt.Errorf("%w: sum usage: %v", ports.ErrStorageUnavailable, err)
		}
		total += tokens
	}
	return total, nil
}

// OldestSince returns the earliest occurred_at strictly after since.
func (s *LedgerStore) OldestSince(ctx context.Context, identity string, since time.Time) (time.Time, bool, error) {
	entries, err := s.rdb.ZRangeByScoreWithScores(ctx, s.ledgerKey(identity), &redis.ZRangeBy{
		Min:    exclusiveMin(since),
		Max:    "+inf",
		Offset: 0,
		Count:  1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: oldest usage: %v", ports.ErrStorageUnavailable, err)
	}
	if len(entries) == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(int64(entries[0].Score)).UTC(), true, nil
}

// PurgeOlderThan deletes records strictly older than horizon for every
// known identity, dropping empty keys from the identity index as it goes.
func (s *LedgerStore) PurgeOlderThan(ctx context.Context, horizon time.Time) (int64, error) {
	identities, err := s.rdb.SMembers(ctx, s.identitiesKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: purge usage: %v", ports.ErrStorageUnavailable, err)
	}

	maxExcl := "(" + strconv.FormatInt(horizon.UnixMilli(), 10)
	var deleted int64
	for _, identity := range identities {
		key := s.ledgerKey(identity)
		n, err := s.rdb.ZRemRangeByScore(ctx, key, "-inf", maxExcl).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: purge usage: %v", ports.ErrStorageUnavailable, err)
		}
		deleted += n

		remaining, err := s.rdb.ZCard(ctx, key).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: purge usage: %v", ports.ErrStorageUnavailable, err)
		}
		if remaining == 0 {
			// Redis drops an empty sorted set on its own, so only the
			// index entry needs cleanup. Never Del the key here: an
			// Append can land between the ZCard read and this point,
			// and Del would destroy its in-window record. Losing the
			// SRem race instead is harmless, since every Append
			// re-indexes its identity.
			if err := s.rdb.SRem(ctx, s.identitiesKey(), identity).Err(); err != nil {
				return deleted, fmt.Errorf("%w: purge usage: %v", ports.ErrStorageUnavailable, err)
			}
		}
	}
	return deleted, nil
}

// Ensure interface compliance.
var _ ports.LedgerStore = (*LedgerStore)(nil)
