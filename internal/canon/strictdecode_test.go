package canon

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStrictAcceptsOrdinaryJSON(t *testing.T) {
	val, err := DecodeStrict([]byte(`{"a":1,"b":[1,2,"c"],"d":null,"e":true}`))
	require.NoError(t, err)

	obj, ok := val.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, obj, "a")
	assert.Contains(t, obj, "b")
	assert.Nil(t, obj["d"])
	assert.Equal(t, true, obj["e"])
}

func TestDecodeStrictRejectsTopLevelDuplicateKey(t *testing.T) {
	_, err := DecodeStrict([]byte(`{"a":1,"a":2}`))
	require.Error(t, err)

	var dup *DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.True(t, dup.Duplicate())
	assert.Equal(t, "a", dup.Key)
}

func TestDecodeStrictRejectsNestedDuplicateKey(t *testing.T) {
	_, err := DecodeStrict([]byte(`{"outer":{"inner":1,"inner":2}}`))
	require.Error(t, err)

	var dup *DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.True(t, dup.Duplicate())
	assert.Equal(t, "inner", dup.Key)
}

func TestDecodeStrictRejectsDuplicateKeyInsideArray(t *testing.T) {
	_, err := DecodeStrict([]byte(`[{"a":1},{"b":1,"b":2}]`))
	require.Error(t, err)

	var dup *DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "b", dup.Key)
}

func TestDecodeStrictAllowsSameKeyAtDifferentNestingLevels(t *testing.T) {
	_, err := DecodeStrict([]byte(`{"a":{"a":1}}`))
	assert.NoError(t, err)
}

func TestDecodeStrictRejectsMalformedJSON(t *testing.T) {
	_, err := DecodeStrict([]byte(`{not json`))
	require.Error(t, err)

	var dup *DuplicateKeyError
	assert.False(t, errors.As(err, &dup))
}
