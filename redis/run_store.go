package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"maps"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/run"
	"github.com/kbukum/flowkit/stream"
)

// maxTxAttempts bounds optimistic retries when a watched run key changes
// between read and write.
const maxTxAttempts = 8

// RunStore keeps run records in Redis. Each run is a JSON document at
// <prefix>:run:<id>; <prefix>:runs is a sorted set of ids scored by
// creation time.
type RunStore struct {
	rdb    *goredis.Client
	prefix string
}

var _ run.Store = (*RunStore)(nil)

// NewRunStore creates a store on client. An empty prefix uses "flowkit".
func NewRunStore(client *Client, prefix string) *RunStore {
	if prefix == "" {
		prefix = "flowkit"
	}
	return &RunStore{rdb: client.Unwrap(), prefix: prefix}
}

func (s *RunStore) key(id string) string { return s.prefix + ":run:" + id }
func (s *RunStore) index() string        { return s.prefix + ":runs" }

func (s *RunStore) Create(ctx context.Context, r *run.Run) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Internal(err)
	}
	created, err := s.rdb.SetNX(ctx, s.key(r.ID), data, 0).Result()
	if err != nil {
		return classify("create run", err)
	}
	if !created {
		return errors.New(errors.ErrCodeAlreadyExists, "run "+r.ID+" already exists")
	}
	score := float64(r.CreatedAt.UnixMilli())
	if err := s.rdb.ZAdd(ctx, s.index(), goredis.Z{Score: score, Member: r.ID}).Err(); err != nil {
		return classify("index run", err)
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, id string) (*run.Run, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if stderrors.Is(err, goredis.Nil) {
		return nil, errors.NotFound("run", id)
	}
	if err != nil {
		return nil, classify("get run", err)
	}
	return decodeRun(raw)
}

func (s *RunStore) Transition(ctx context.Context, id string, tr run.Transition) error {
	return s.update(ctx, id, tr.Apply)
}

func (s *RunStore) SaveCheckpoint(ctx context.Context, id, sourceID string, cursor stream.Cursor) error {
	return s.update(ctx, id, func(r *run.Run) error {
		return run.SetCheckpoint(r, sourceID, cursor)
	})
}

func (s *RunStore) Checkpoints(ctx context.Context, id string) (map[string]stream.Cursor, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return maps.Clone(r.Checkpoints), nil
}

func (s *RunStore) List(ctx context.Context, filter run.ListFilter) ([]*run.Run, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.index(), 0, -1).Result()
	if err != nil {
		return nil, classify("list runs", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, classify("list runs", err)
	}

	var out []*run.Run
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		r, err := decodeRun([]byte(raw))
		if err != nil {
			return nil, err
		}
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	return filter.SortNewestFirst(out), nil
}

// update reads, modifies, and writes a run under WATCH.
func (s *RunStore) update(ctx context.Context, id string, fn func(*run.Run) error) error {
	key := s.key(id)
	for range maxTxAttempts {
		err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if stderrors.Is(err, goredis.Nil) {
				return errors.NotFound("run", id)
			}
			if err != nil {
				return err
			}
			r, err := decodeRun(raw)
			if err != nil {
				return err
			}
			if err := fn(r); err != nil {
				return err
			}
			data, err := json.Marshal(r)
			if err != nil {
				return errors.Internal(err)
			}
			_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
				p.Set(ctx, key, data, 0)
				return nil
			})
			return err
		}, key)
		if stderrors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return classify("update run", err)
	}
	return errors.Conflict("run " + id + " is being updated concurrently")
}

func decodeRun(raw []byte) (*run.Run, error) {
	var r run.Run
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errors.Internal(err)
	}
	return &r, nil
}
