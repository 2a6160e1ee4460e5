package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockUpdate_ThreeStateDecoding(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantHeaders PatchOp
		wantConds   PatchOp
	}{
		{"absent fields keep", `{"name":"x"}`, PatchKeep, PatchKeep},
		{"null clears", `{"responseHeaders":null,"matchConditions":null}`, PatchClear, PatchClear},
		{"values set", `{"responseHeaders":{"X-A":"1"},"matchConditions":{"pathPattern":"/a/*"}}`, PatchSet, PatchSet},
		{"empty headers set", `{"responseHeaders":{}}`, PatchSet, PatchKeep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u MockUpdate
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &u))
			assert.Equal(t, tt.wantHeaders, u.ResponseHeaders.Op)
			assert.Equal(t, tt.wantConds, u.MatchConditions.Op)
		})
	}
}

func TestPatch_Apply(t *testing.T) {
	current := map[string]string{"A": "1"}

	assert.Equal(t, current, Keep[map[string]string]().Apply(current))
	assert.Nil(t, Clear[map[string]string]().Apply(current))

	next := map[string]string{}
	got := SetTo(next).Apply(current)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPatch_EmptySetIsNotNil(t *testing.T) {
	var u MockUpdate
	require.NoError(t, json.Unmarshal([]byte(`{"responseHeaders":{}}`), &u))
	assert.NotNil(t, u.ResponseHeaders.Value)
}

func TestMockUpdate_RejectsNonObjectConditions(t *testing.T) {
	for _, payload := range []string{
		`{"matchConditions":[1,2]}`,
		`{"matchConditions":"x"}`,
		`{"matchConditions":{"bodyContains":[1]}}`,
	} {
		var u MockUpdate
		err := json.Unmarshal([]byte(payload), &u)
		require.Error(t, err, payload)

		var ve *ValidationError
		assert.ErrorAs(t, err, &ve, payload)
	}
}
