package redisstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/croprot/internal/engine"
	"github.com/roach88/croprot/internal/ir"
	"github.com/roach88/croprot/internal/rotation"
	"github.com/roach88/croprot/internal/testutil"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(mr.Addr(), "", 0, opts...)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestStore_CheckpointContract(t *testing.T) {
	testutil.RunCheckpointStoreContract(t, func(t *testing.T) testutil.CheckpointStore {
		s, _ := newTestStore(t)
		return s
	})
}

func TestStore_KeyLayout(t *testing.T) {
	s, mr := newTestStore(t, WithPrefix("test:"))
	ctx := context.Background()

	cp := ir.Checkpoint{FieldID: "north", History: rotation.Snapshot{PreviousCrop1: "wheat"}, Seq: 2}
	require.NoError(t, s.SaveCheckpoint(ctx, cp))

	assert.True(t, mr.Exists("test:north"))
	assert.False(t, mr.Exists(DefaultPrefix+"north"))

	members, err := mr.Members("test:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"north"}, members)

	hash, err := ir.CheckpointHash(cp)
	require.NoError(t, err)
	raw, err := mr.Get("test:north")
	require.NoError(t, err)
	assert.JSONEq(t, `{"field_id":"north","history":{"previous_crop1":"wheat","previous_crop2":""},"seq":2,"hash":"`+hash+`"}`, raw)
}

func TestStore_TamperedValue(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	cp := ir.Checkpoint{FieldID: "north", History: rotation.Snapshot{PreviousCrop1: "wheat"}, Seq: 2}
	require.NoError(t, s.SaveCheckpoint(ctx, cp))
	raw, err := mr.Get(DefaultPrefix + "north")
	require.NoError(t, err)

	edited := strings.Replace(raw, `"previous_crop1":"wheat"`, `"previous_crop1":"chickpea"`, 1)
	require.NotEqual(t, raw, edited)
	require.NoError(t, mr.Set(DefaultPrefix+"north", edited))

	_, err = s.LoadCheckpoint(ctx, "north")
	assert.ErrorIs(t, err, ir.ErrCheckpointCorrupt)
}

func TestStore_Delete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCheckpoint(ctx, ir.Checkpoint{FieldID: "north", Seq: 1}))
	require.NoError(t, s.Delete(ctx, "north"))

	_, err := s.LoadCheckpoint(ctx, "north")
	assert.True(t, errors.Is(err, ir.ErrCheckpointNotFound))

	ids, err := s.ListFields(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_SharedClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	a := NewFromClient(client, WithPrefix("a:"))
	b := NewFromClient(client, WithPrefix("b:"))
	ctx := context.Background()

	require.NoError(t, a.SaveCheckpoint(ctx, ir.Checkpoint{FieldID: "north", Seq: 1}))

	_, err := b.LoadCheckpoint(ctx, "north")
	assert.True(t, errors.Is(err, ir.ErrCheckpointNotFound), "prefixes must isolate stores")
}

func TestStore_CorruptValue(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, mr.Set(DefaultPrefix+"north", "not json"))

	_, err := s.LoadCheckpoint(context.Background(), "north")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ir.ErrCheckpointNotFound))
}

func TestStore_ServerDown(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	err := s.SaveCheckpoint(context.Background(), ir.Checkpoint{FieldID: "north", Seq: 1})
	assert.Error(t, err)
}

func TestStore_BacksEngine(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	eng := engine.New(s)
	_, err := eng.RecordHarvest(ctx, "north", "wheat")
	require.NoError(t, err)
	_, err = eng.RecordHarvest(ctx, "north", "sorghum")
	require.NoError(t, err)

	// A second engine sees the same history through Redis.
	other := engine.New(s)
	ok, err := other.CheckSowing(ctx, "north", "wheat")
	require.NoError(t, err)
	assert.False(t, ok.Allowed)
	assert.Equal(t, rotation.RuleLegumeBreak, ok.Rule)
}

func TestStore_TwoEnginesNoLostHarvest(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a := engine.New(s)
	b := engine.New(s)

	_, err := b.RecordHarvest(ctx, "north", "wheat")
	require.NoError(t, err)
	_, err = a.History(ctx, "north")
	require.NoError(t, err)
	for _, crop := range []string{"sorghum", "mungbean"} {
		_, err = a.RecordHarvest(ctx, "north", crop)
		require.NoError(t, err)
	}

	// b's cached history still ends in wheat; its write must not land.
	_, err = b.RecordHarvest(ctx, "north", "chickpea")
	require.Error(t, err)
	assert.ErrorIs(t, err, ir.ErrCheckpointStale)

	cp, err := s.LoadCheckpoint(ctx, "north")
	require.NoError(t, err)
	assert.Equal(t, rotation.Snapshot{PreviousCrop1: "mungbean", PreviousCrop2: "sorghum"}, cp.History)

	h, err := b.RecordHarvest(ctx, "north", "chickpea")
	require.NoError(t, err)
	assert.Equal(t, rotation.Snapshot{PreviousCrop1: "chickpea", PreviousCrop2: "mungbean"}, h)
}

func TestStore_SharedEnginesStayInSync(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a := engine.New(s, engine.WithSharedCheckpoints())
	b := engine.New(s, engine.WithSharedCheckpoints())

	for _, crop := range []string{"wheat", "sorghum"} {
		_, err := a.RecordHarvest(ctx, "north", crop)
		require.NoError(t, err)
		_, err = b.History(ctx, "north")
		require.NoError(t, err)
	}
	_, err := a.RecordHarvest(ctx, "north", "mungbean")
	require.NoError(t, err)

	h, err := b.RecordHarvest(ctx, "north", "chickpea")
	require.NoError(t, err)
	assert.Equal(t, rotation.Snapshot{PreviousCrop1: "chickpea", PreviousCrop2: "mungbean"}, h)

	cp, err := s.LoadCheckpoint(ctx, "north")
	require.NoError(t, err)
	assert.Equal(t, h, cp.History)
}
