package upstream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexString(t *testing.T) {
	var v struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"42","b":42,"c":null}`), &v))
	assert.Equal(t, FlexString("42"), v.A)
	assert.Equal(t, FlexString("42"), v.B)
	assert.Equal(t, FlexString(""), v.C)
}

func TestAmount(t *testing.T) {
	var v struct {
		Number  Amount `json:"number"`
		Quoted  Amount `json:"quoted"`
		Empty   Amount `json:"empty"`
		Missing Amount `json:"missing"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"number":-1500.5,"quoted":"300.25","empty":""}`), &v))
	assert.True(t, decimal.RequireFromString("-1500.5").Equal(v.Number.Decimal))
	assert.True(t, decimal.RequireFromString("300.25").Equal(v.Quoted.Decimal))
	assert.False(t, v.Empty.Valid)
	assert.False(t, v.Missing.Valid)
	assert.True(t, v.Missing.OrZero().IsZero())

	var bad Amount
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &bad))
}

func TestParseDate(t *testing.T) {
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *ParseDate("2024-03-01"))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *ParseDate("2024-03-01T10:00:00Z"))
	assert.Nil(t, ParseDate(""))
	assert.Nil(t, ParseDate("01/03/2024"))
}
