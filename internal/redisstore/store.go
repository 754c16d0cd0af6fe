// Package redisstore keeps field checkpoints in Redis.
//
// Several simulator processes may share one set of fields. Every write is a
// compare-and-set on the checkpoint seq inside a Lua script, so a process
// whose view of a field is out of date gets ir.ErrCheckpointStale instead of
// overwriting a newer harvest. Only checkpoints are stored; an engine backed
// by Redis runs without a decision log.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	backend "github.com/redis/go-redis/v9"

	"github.com/roach88/croprot/internal/ir"
)

// DefaultPrefix namespaces all keys written by the store.
const DefaultPrefix = "croprot:field:"

// Store implements engine.CheckpointStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix for checkpoints.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(fieldID string) string {
	return s.prefix + fieldID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// record is the stored value: the checkpoint plus its fingerprint.
type record struct {
	ir.Checkpoint
	Hash string `json:"hash"`
}

// storedSeq reads the seq of the current value, 0 when the key is absent.
const storedSeq = `
local cur = redis.call("GET", KEYS[1])
local seq = 0
if cur then
	seq = tonumber(cjson.decode(cur)["seq"])
end
`

const writeValue = `
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SADD", KEYS[2], ARGV[3])
return 1
`

// advanceScript writes the checkpoint only if its seq is not behind the
// stored one, matching the SQLite store's forward-only semantics.
var advanceScript = backend.NewScript(storedSeq + `
if seq > tonumber(ARGV[2]) then
	return 0
end
` + writeValue)

// replaceScript writes the checkpoint only if the stored seq equals ARGV[2].
var replaceScript = backend.NewScript(storedSeq + `
if seq ~= tonumber(ARGV[2]) then
	return 0
end
` + writeValue)

// SaveCheckpoint persists a checkpoint. A checkpoint whose seq is lower than
// the stored one is not written; ir.ErrCheckpointStale is returned.
func (s *Store) SaveCheckpoint(ctx context.Context, cp ir.Checkpoint) error {
	return s.write(ctx, advanceScript, cp, cp.Seq)
}

// ReplaceCheckpoint writes cp only if the stored checkpoint still has seq
// prevSeq (0 for a field without a checkpoint). Returns
// ir.ErrCheckpointStale otherwise.
func (s *Store) ReplaceCheckpoint(ctx context.Context, cp ir.Checkpoint, prevSeq int64) error {
	return s.write(ctx, replaceScript, cp, prevSeq)
}

func (s *Store) write(ctx context.Context, script *backend.Script, cp ir.Checkpoint, seqArg int64) error {
	hash, err := ir.CheckpointHash(cp)
	if err != nil {
		return fmt.Errorf("failed to hash checkpoint: %w", err)
	}
	data, err := json.Marshal(record{Checkpoint: cp, Hash: hash})
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	keys := []string{s.key(cp.FieldID), s.indexKey()}
	written, err := script.Run(ctx, s.client, keys, string(data), seqArg, cp.FieldID).Int()
	if err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	if written == 0 {
		return fmt.Errorf("checkpoint %q at seq %d: %w", cp.FieldID, cp.Seq, ir.ErrCheckpointStale)
	}
	return nil
}

// LoadCheckpoint retrieves a checkpoint.
// Returns ir.ErrCheckpointNotFound for an unknown field and
// ir.ErrCheckpointCorrupt if the value does not match its stored hash.
func (s *Store) LoadCheckpoint(ctx context.Context, fieldID string) (ir.Checkpoint, error) {
	val, err := s.client.Get(ctx, s.key(fieldID)).Result()
	if err != nil {
		if err == backend.Nil {
			return ir.Checkpoint{}, fmt.Errorf("load checkpoint %q: %w", fieldID, ir.ErrCheckpointNotFound)
		}
		return ir.Checkpoint{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return ir.Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	hash, err := ir.CheckpointHash(rec.Checkpoint)
	if err != nil {
		return ir.Checkpoint{}, fmt.Errorf("load checkpoint %q: %w", fieldID, err)
	}
	if hash != rec.Hash {
		return ir.Checkpoint{}, fmt.Errorf("load checkpoint %q: %w", fieldID, ir.ErrCheckpointCorrupt)
	}
	return rec.Checkpoint, nil
}

// ListFields returns all field ids, sorted.
func (s *Store) ListFields(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	slices.Sort(ids)
	return ids, nil
}

// Delete removes a field checkpoint.
func (s *Store) Delete(ctx context.Context, fieldID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(fieldID))
	pipe.SRem(ctx, s.indexKey(), fieldID)
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
