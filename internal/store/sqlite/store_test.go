package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func result(id string, confidence float64, types ...string) *model.Result {
	r := &model.Result{
		EntityID:     id,
		Profile:      model.ProfileFromFirst([model.AxisCount]int{50, 50, 50, 30}),
		Confidence:   confidence,
		Provenance:   []model.Provenance{model.ProvenanceEra},
		Reasoning:    []string{"reference tables default@1.0.0"},
		TableVersion: "default@1.0.0",
	}
	for i, code := range types {
		rank := model.RankPrimary
		if i > 0 {
			rank = model.RankSecondary
		}
		r.Types = append(r.Types, model.TypeWeight{Code: code, Weight: 0.6, Rank: rank})
	}
	return r
}

func TestStore_ImplementsInterface(t *testing.T) {
	var _ store.Store = (*Store)(nil)
}

func TestStore_UpsertContract(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	written, err := s.Upsert(ctx, result("a1", 0.6, "INFJ", "INFP"))
	require.NoError(t, err)
	assert.True(t, written)

	written, err = s.Upsert(ctx, result("a1", 0.4, "ESTP"))
	require.NoError(t, err)
	assert.False(t, written, "lower confidence must not overwrite")

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "INFJ", got.Primary())
	secondary, ok := got.Secondary()
	assert.True(t, ok)
	assert.Equal(t, "INFP", secondary)
	assert.Equal(t, 70, got.Profile[model.Structured])

	written, err = s.Upsert(ctx, result("a1", 0.6, "ENFJ"))
	require.NoError(t, err)
	assert.True(t, written, "equal confidence overwrites")

	written, err = s.Upsert(ctx, result("a1", 0.75, "ENTJ"))
	require.NoError(t, err)
	assert.True(t, written)

	got, err = s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "ENTJ", got.Primary())
	assert.Equal(t, 0.75, got.Confidence)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "nobody")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestStore_CountByType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, r := range []*model.Result{
		result("a1", 0.6, "INFJ"),
		result("a2", 0.5, "INFJ"),
		result("a3", 0.5, "ESTP"),
	} {
		_, err := s.Upsert(ctx, r)
		require.NoError(t, err)
	}

	n, err := s.CountByType(ctx, "INFJ")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_RejectsMissingID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Upsert(context.Background(), result("", 0.5, "INFP"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInput))
}

func TestStore_InMemoryDSN(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	written, err := s.Upsert(context.Background(), result("a1", 0.4, "INFP"))
	require.NoError(t, err)
	assert.True(t, written)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, result("a1", 0.6, "INFJ"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "INFJ", got.Primary())
}
