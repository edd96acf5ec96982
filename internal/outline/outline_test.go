package outline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ChuLiYu/geotile/internal/geom"
	"github.com/ChuLiYu/geotile/pkg/types"
)

func rect(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

func TestReduceNestedRectangles(t *testing.T) {
	in := []types.Outline{
		{GroupKey: "5", Polygon: rect(2, 2, 4, 4)},
		{GroupKey: "5", Polygon: rect(0, 0, 10, 10)},
		{GroupKey: "5", Polygon: rect(1, 1, 6, 6)},
	}

	res, err := Reduce(in, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	want := []types.Outline{{GroupKey: "5", Polygon: rect(0, 0, 10, 10)}}
	if diff := cmp.Diff(want, res.Outlines); diff != "" {
		t.Errorf("Reduce() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, res.Removed)
}

func TestReduceNeverCrossesGroups(t *testing.T) {
	in := []types.Outline{
		{GroupKey: "a", Polygon: rect(0, 0, 10, 10)},
		{GroupKey: "b", Polygon: rect(2, 2, 4, 4)},
		{GroupKey: "c", Polygon: rect(0, 0, 10, 10)},
	}

	res, err := Reduce(in, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Removed, "containment across group keys is ignored")
	if diff := cmp.Diff(in, res.Outlines); diff != "" {
		t.Errorf("Reduce() mismatch (-want +got):\n%s", diff)
	}
}

func TestReduceDropsHoles(t *testing.T) {
	donut := append(rect(0, 0, 10, 10), orb.Ring{{4, 4}, {4, 6}, {6, 6}, {6, 4}, {4, 4}})
	in := []types.Outline{
		{GroupKey: "1", Polygon: donut},
		{GroupKey: "1", Polygon: rect(4.5, 4.5, 5.5, 5.5)},
	}

	res, err := Reduce(in, nil)
	require.NoError(t, err)
	require.Len(t, res.Outlines, 1)
	assert.Len(t, res.Outlines[0].Polygon, 1, "interior rings are discarded")
	assert.Equal(t, 1, res.Removed, "the polygon inside the former hole is now contained")
}

func TestReduceIdenticalDuplicatesKeepOne(t *testing.T) {
	in := []types.Outline{
		{GroupKey: "1", Polygon: rect(0, 0, 1, 1)},
		{GroupKey: "1", Polygon: rect(0, 0, 1, 1)},
	}

	res, err := Reduce(in, nil)
	require.NoError(t, err)
	assert.Len(t, res.Outlines, 1)
	assert.Equal(t, 1, res.Removed)
}

func TestReducePartialOverlapKeepsBoth(t *testing.T) {
	in := []types.Outline{
		{GroupKey: "1", Polygon: rect(0, 0, 5, 5)},
		{GroupKey: "1", Polygon: rect(3, 3, 9, 9)},
	}

	res, err := Reduce(in, nil)
	require.NoError(t, err)
	assert.Len(t, res.Outlines, 2)
	assert.Zero(t, res.Removed)
}

func TestReduceRepairsInvalid(t *testing.T) {
	// 順時針且未閉合
	in := []types.Outline{
		{GroupKey: "1", Polygon: orb.Polygon{{{0, 0}, {0, 2}, {2, 2}, {2, 0}}}},
	}

	res, err := Reduce(in, nil)
	require.NoError(t, err)
	require.Len(t, res.Outlines, 1)
	assert.Equal(t, 1, res.Repaired)
	assert.True(t, geom.IsValid(res.Outlines[0].Polygon))
}

func TestReduceUnrepairable(t *testing.T) {
	in := []types.Outline{
		{GroupKey: "1", Polygon: orb.Polygon{{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}}}},
	}

	_, err := Reduce(in, nil)
	assert.ErrorIs(t, err, geom.ErrGeometry)
}

func TestReduceIsDeterministic(t *testing.T) {
	in := []types.Outline{
		{GroupKey: "x", Polygon: rect(0, 0, 10, 10)},
		{GroupKey: "y", Polygon: rect(0, 0, 3, 3)},
		{GroupKey: "x", Polygon: rect(1, 1, 2, 2)},
		{GroupKey: "y", Polygon: rect(1, 1, 2, 2)},
		{GroupKey: "x", Polygon: rect(20, 20, 30, 30)},
	}

	first, err := Reduce(in, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Reduce(in, nil)
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("Reduce() not deterministic (-first +again):\n%s", diff)
		}
	}
	assert.Equal(t, 2, first.Removed)
}

func TestReduceEmpty(t *testing.T) {
	res, err := Reduce(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Outlines)
	assert.Zero(t, res.Removed)
}
