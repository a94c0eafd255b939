package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-12-31")
	require.NoError(t, err)
	assert.Equal(t, "2025-12-31", d.String())

	d, err = ParseDate("2025-12-31T23:15:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), d.Time)

	_, err = ParseDate("31/12/2025")
	require.Error(t, err)
}

func TestDate_JSON(t *testing.T) {
	var payload struct {
		Due *Date `json:"due"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2024-02-29"}`), &payload))
	require.NotNil(t, payload.Due)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2024-02-29"}`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"due":"tomorrow"}`), &payload))
	require.Error(t, json.Unmarshal([]byte(`{"due":20240229}`), &payload))
}

func TestOptionalDate_DistinguishesAbsentNullAndValue(t *testing.T) {
	var payload struct {
		Due OptionalDate `json:"due"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{}`), &payload))
	assert.False(t, payload.Due.Set)

	require.NoError(t, json.Unmarshal([]byte(`{"due":"2025-01-02"}`), &payload))
	assert.True(t, payload.Due.Set)
	require.NotNil(t, payload.Due.Value)
	assert.Equal(t, "2025-01-02", payload.Due.Value.String())

	payload.Due = OptionalDate{}
	require.NoError(t, json.Unmarshal([]byte(`{"due":null}`), &payload))
	assert.True(t, payload.Due.Set)
	assert.Nil(t, payload.Due.Value)

	require.Error(t, json.Unmarshal([]byte(`{"due":"soon"}`), &payload))
}
