package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariablesKey_OrderIndependent(t *testing.T) {
	v1 := map[string]any{}
	v1["a"] = 1
	v1["b"] = "x"
	v1["nested"] = map[string]any{"y": true, "z": []any{1, 2}}

	v2 := map[string]any{}
	v2["nested"] = map[string]any{"z": []any{1, 2}, "y": true}
	v2["b"] = "x"
	v2["a"] = 1

	k1, err := VariablesKey(v1)
	require.NoError(t, err)
	k2, err := VariablesKey(v2)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
}

func TestVariablesKey_Empty(t *testing.T) {
	t.Run("nil map", func(t *testing.T) {
		k, err := VariablesKey(nil)
		require.NoError(t, err)
		assert.Equal(t, EmptyVariablesKey, k)
	})

	t.Run("empty map", func(t *testing.T) {
		k, err := VariablesKey(map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, EmptyVariablesKey, k)
	})
}

func TestVariablesKey_DistinctValues(t *testing.T) {
	k1, err := VariablesKey(map[string]any{"id": "1"})
	require.NoError(t, err)
	k2, err := VariablesKey(map[string]any{"id": "2"})
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
}

func TestVariablesKey_UnencodableValue(t *testing.T) {
	_, err := VariablesKey(map[string]any{"fn": func() {}})
	assert.Error(t, err)
}
