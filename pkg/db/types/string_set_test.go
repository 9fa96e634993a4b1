package dbtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringSetAddIsIdempotent(t *testing.T) {
	var set StringSet
	assert.True(t, set.Add("service-cta"))
	assert.False(t, set.Add("service-cta"))
	assert.False(t, set.Add(""))
	assert.True(t, set.Add("service-genesis"))
	assert.Equal(t, StringSet{"service-cta", "service-genesis"}, set)
}

func TestStringSetScanAndValue(t *testing.T) {
	set := StringSet{"a", "b"}
	raw, err := set.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, raw)

	var scanned StringSet
	require.NoError(t, scanned.Scan([]byte(`["a","b","a"]`)))
	assert.Equal(t, StringSet{"a", "b"}, scanned)

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)

	assert.Error(t, scanned.Scan(42))
	assert.Error(t, scanned.Scan("not-json"))
}

func TestStringSetContainsAll(t *testing.T) {
	set := StringSet{"a", "b", "c"}
	assert.True(t, set.ContainsAll(StringSet{"c", "a"}))
	assert.False(t, set.ContainsAll(StringSet{"a", "d"}))
	assert.True(t, set.ContainsAll(nil))
}
