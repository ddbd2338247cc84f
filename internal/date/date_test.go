package date

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	d, err := Parse("2024-03-09")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", d.String())
	assert.True(t, d.Equal(New(2024, time.March, 9)))

	_, err = Parse("03/09/2024")
	assert.ErrorContains(t, err, "expected YYYY-MM-DD")
}

func TestOfUsesLocation(t *testing.T) {
	// 23:30 UTC on the 1st is already the 2nd in Tokyo.
	instant := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)

	assert.Equal(t, "2024-01-01", Of(instant, nil).String())
	assert.Equal(t, "2024-01-02", Of(instant, tokyo).String())
}

func TestOrdering(t *testing.T) {
	a := MustParse("2024-01-01")
	b := a.AddDays(1)
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.Before(a))
	assert.Equal(t, "2023-12-31", a.AddDays(-1).String())
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		Due  Date  `json:"due"`
		Done *Date `json:"done,omitempty"`
	}
	data, err := json.Marshal(wrapper{Due: MustParse("2024-05-01")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2024-05-01"}`, string(data))

	var got wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2024-06-02","done":"2024-06-03"}`), &got))
	assert.Equal(t, "2024-06-02", got.Due.String())
	require.NotNil(t, got.Done)
	assert.Equal(t, "2024-06-03", got.Done.String())

	assert.Error(t, json.Unmarshal([]byte(`{"due":"tomorrow"}`), &got))
}

func TestScanValue(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2024-07-04"))
	assert.Equal(t, "2024-07-04", d.String())

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-07-04", v)

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())
	v, err = d.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Nil(t, d.Ptr())
}
