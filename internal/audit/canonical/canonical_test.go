package canonical_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cncaiprojem/progressd/internal/audit/canonical"
)

func TestMarshalSortsKeys(t *testing.T) {
	data, err := canonical.Marshal(map[string]interface{}{
		"b": 1,
		"a": 2,
		"c": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(data))
}

func TestMarshalIsDeterministicAcrossCalls(t *testing.T) {
	payload := map[string]interface{}{
		"job_id": int64(100),
		"nested": map[string]interface{}{"z": 1, "a": 2},
		"list":   []interface{}{3, 1, 2},
	}
	first, err := canonical.Marshal(payload)
	require.NoError(t, err)
	second, err := canonical.Marshal(payload)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMarshalNormalizesIntegralFloat(t *testing.T) {
	data, err := canonical.Marshal(map[string]interface{}{"v": 5.0})
	require.NoError(t, err)
	assert.Equal(t, `{"v":5}`, string(data))
}

func TestMarshalTrimsTrailingZeros(t *testing.T) {
	data, err := canonical.Marshal(map[string]interface{}{"v": 5.250000})
	require.NoError(t, err)
	assert.Equal(t, `{"v":5.25}`, string(data))
}

func TestMarshalEscapesControlCharacters(t *testing.T) {
	data, err := canonical.Marshal(map[string]interface{}{"v": "line1\nline2"})
	require.NoError(t, err)
	assert.Equal(t, `{"v":"line1\nline2"}`, string(data))
}

func TestMarshalNoInsignificantWhitespace(t *testing.T) {
	data, err := canonical.Marshal(map[string]interface{}{"a": []interface{}{1, 2, 3}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), " ")
}
