package recognition

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func galleryOf(t *testing.T, entries ...Entry) *Gallery {
	t.Helper()
	store := newMemStore()
	for _, e := range entries {
		require.NoError(t, store.SaveSignature(context.Background(), e.Identity, e.Signature))
	}
	g, err := LoadGallery(context.Background(), store)
	require.NoError(t, err)
	return g
}

func entry(id int64, name string, sig ...float64) Entry {
	return Entry{Identity: Identity{ID: id, Name: name}, Signature: Signature(sig)}
}

func TestMatchExactSignatureAnyTolerance(t *testing.T) {
	g := galleryOf(t,
		entry(1, "Ann", 0.1, 0.2, 0.3),
		entry(2, "Bob", 0.9, 0.9, 0.9),
	)
	for _, tol := range []float64{0, 1e-12, 0.5, 10} {
		res := Match(Signature{0.1, 0.2, 0.3}, g, tol)
		require.True(t, res.Known, "tolerance %v", tol)
		assert.Equal(t, int64(1), res.ID)
		assert.Equal(t, 0.0, res.Distance)
	}
}

func TestMatchAllFarIsUnknown(t *testing.T) {
	g := galleryOf(t,
		entry(1, "Ann", 0, 0),
		entry(2, "Bob", 3, 4),
	)
	res := Match(Signature{10, 10}, g, 0.5)
	assert.False(t, res.Known)
	assert.Equal(t, UnknownLabel, res.Label())
}

func TestMatchEmptyGalleryIsUnknown(t *testing.T) {
	g := galleryOf(t)
	for _, tol := range []float64{0, 0.5, math.MaxFloat64} {
		assert.False(t, Match(Signature{0, 0}, g, tol).Known)
	}
	assert.False(t, Match(Signature{0}, nil, 1).Known)
}

func TestMatchPicksMinimumDistance(t *testing.T) {
	// distances from the zero query: 0.3, 0.2, 0.45
	entries := []Entry{
		entry(1, "first", 0.3),
		entry(2, "closest", 0.2),
		entry(3, "third", 0.45),
	}
	g := galleryOf(t, entries...)

	res := Match(Signature{0}, g, 0.5)
	require.True(t, res.Known)
	assert.Equal(t, int64(2), res.ID)
	assert.Equal(t, "closest", res.Label())
	assert.InDelta(t, 0.2, res.Distance, 1e-12)

	first := Matcher{Tolerance: 0.5, Policy: MatchFirst}.MatchEntries(Signature{0}, entries)
	assert.Equal(t, int64(1), first.ID)
}

func TestMatchToleranceBoundaryIsInclusive(t *testing.T) {
	g := galleryOf(t, entry(7, "Edge", 3, 4))
	res := Match(Signature{0, 0}, g, 5)
	require.True(t, res.Known)
	assert.Equal(t, int64(7), res.ID)
	assert.False(t, Match(Signature{0, 0}, g, 4.999).Known)
}

func TestMatchEqualDistancesPreferLowerID(t *testing.T) {
	g := galleryOf(t,
		entry(9, "Nine", -1),
		entry(4, "Four", 1),
	)
	res := Match(Signature{0}, g, 1)
	require.True(t, res.Known)
	assert.Equal(t, int64(4), res.ID)
}

func TestMatchIgnoresMismatchedDimensions(t *testing.T) {
	g := galleryOf(t,
		entry(1, "Short", 0),
		entry(2, "Right", 0.1, 0.1),
	)
	res := Match(Signature{0, 0}, g, 1)
	require.True(t, res.Known)
	assert.Equal(t, int64(2), res.ID)
}

func TestMatchNegativeOrNaNTolerance(t *testing.T) {
	g := galleryOf(t, entry(1, "Ann", 0.5))
	assert.False(t, Match(Signature{0.5}, g, -1).Known)
	assert.False(t, Match(Signature{0.5}, g, math.NaN()).Known)
}

func TestParseMatchPolicy(t *testing.T) {
	p, err := ParseMatchPolicy("")
	require.NoError(t, err)
	assert.Equal(t, MatchClosest, p)

	p, err = ParseMatchPolicy("FIRST")
	require.NoError(t, err)
	assert.Equal(t, MatchFirst, p)

	_, err = ParseMatchPolicy("best")
	assert.Error(t, err)
}
