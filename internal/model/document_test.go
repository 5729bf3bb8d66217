package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyUpdatesGuardedIncrement(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	data := map[string]interface{}{"likes": []interface{}{"u1"}, "like_count": float64(1)}

	out, err := ApplyUpdates(data, []FieldUpdate{
		ArrayUnion("likes", "u1"),
		IncrementIfChanged("like_count", 1, "likes"),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"u1"}, out["likes"])
	assert.Equal(t, float64(1), out["like_count"])

	out, err = ApplyUpdates(out, []FieldUpdate{
		ArrayUnion("likes", "u2"),
		IncrementIfChanged("like_count", 1, "likes"),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"u1", "u2"}, out["likes"])
	assert.Equal(t, float64(2), out["like_count"])

	out, err = ApplyUpdates(out, []FieldUpdate{
		ArrayRemove("likes", "u3"),
		IncrementIfChanged("like_count", -1, "likes"),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, float64(2), out["like_count"])

	// 守卫字段只看本批更新，之前的变化不算
	out, err = ApplyUpdates(out, []FieldUpdate{IncrementIfChanged("like_count", 1, "likes")}, now)
	require.NoError(t, err)
	assert.Equal(t, float64(2), out["like_count"])

	out, err = ApplyUpdates(out, []FieldUpdate{
		ArrayRemove("likes", "u1"),
		IncrementIfChanged("like_count", -1, "likes"),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"u2"}, out["likes"])
	assert.Equal(t, float64(1), out["like_count"])
	assert.Equal(t, []interface{}{"u1"}, data["likes"])
}
