package persistence

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/genflow/pkg/api"
)

// RedisStore is a FlowStateStore backed by Redis. It uses a simple key
// structure:
//
//	<prefix>state:<flowId>   => JSON-encoded FlowState
//	<prefix>idx:all          => ZSET of all flowIds (score: start time)
//	<prefix>idx:flow:<name>  => ZSET of flowIds for a given flow name
//
// The indexes serve ListStates, which is an inspection path, not the
// execution hot path.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ api.FlowStateStore = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store. prefix is optional but
// recommended (e.g. "genflow:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "genflow:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) keyState(flowID string) string { return s.prefix + "state:" + flowID }
func (s *RedisStore) keyAll() string                { return s.prefix + "idx:all" }
func (s *RedisStore) keyFlow(name string) string    { return s.prefix + "idx:flow:" + name }

func (s *RedisStore) Create(ctx context.Context, fs *api.FlowState) error {
	data, err := EncodeState(fs)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.keyState(fs.FlowID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return api.ErrAlreadyExists
	}

	score := float64(fs.StartTime.UnixNano())
	member := redis.Z{Score: score, Member: fs.FlowID}
	if err := s.client.ZAdd(ctx, s.keyAll(), member).Err(); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, s.keyFlow(fs.Name), member).Err()
}

func (s *RedisStore) Load(ctx context.Context, flowID string) (*api.FlowState, error) {
	data, err := s.client.Get(ctx, s.keyState(flowID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, api.ErrNotFound
		}
		return nil, err
	}
	return DecodeState(data)
}

func (s *RedisStore) Save(ctx context.Context, fs *api.FlowState) error {
	data, err := EncodeState(fs)
	if err != nil {
		return err
	}

	// Full-record overwrite, but only for flowIds that were created.
	ok, err := s.client.SetXX(ctx, s.keyState(fs.FlowID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return api.ErrNotFound
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, q api.StateQuery) ([]*api.FlowStateSummary, string, error) {
	key := s.keyAll()
	if q.Name != "" {
		key = s.keyFlow(q.Name)
	}

	ids, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, "", err
	}
	sort.Strings(ids)

	start := 0
	if q.ContinuationToken != "" {
		start = sort.SearchStrings(ids, q.ContinuationToken)
		if start < len(ids) && ids[start] == q.ContinuationToken {
			start++
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}

	page := make([]*api.FlowStateSummary, 0, end-start)
	for _, id := range ids[start:end] {
		fs, err := s.Load(ctx, id)
		if err != nil {
			if errors.Is(err, api.ErrNotFound) {
				// Index entry without a state key; skip it.
				continue
			}
			return nil, "", err
		}
		page = append(page, fs.Summary())
	}

	token := ""
	if end < len(ids) && len(page) > 0 {
		token = page[len(page)-1].FlowID
	}
	return page, token, nil
}
