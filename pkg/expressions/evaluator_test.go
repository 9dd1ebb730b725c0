package expressions

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, raw string) any {
	t.Helper()
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	var out any
	require.NoError(t, decoder.Decode(&out))
	return out
}

func TestEvaluator_EvaluateSlice(t *testing.T) {
	e := NewEvaluator()
	doc := parse(t, `{"SupplierInvoices":[{"GivenNumber":"1"},{"GivenNumber":"2"}],"MetaInformation":{"@TotalPages":3}}`)

	items, err := e.EvaluateSlice("SupplierInvoices", doc)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	missing, err := e.EvaluateSlice("Invoices", doc)
	require.NoError(t, err)
	assert.Empty(t, missing)

	_, err = e.EvaluateSlice("MetaInformation", doc)
	assert.Error(t, err)
}

func TestEvaluator_EvaluateInt(t *testing.T) {
	e := NewEvaluator()
	doc := parse(t, `{"MetaInformation":{"@TotalPages":3}}`)

	pages, err := e.EvaluateInt(`MetaInformation."@TotalPages"`, doc)
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
}

func TestEvaluator_InvalidExpression(t *testing.T) {
	_, err := NewEvaluator().Evaluate("data[", map[string]any{})
	assert.Error(t, err)
}

func TestDecode_KeepsNumberPrecision(t *testing.T) {
	doc := parse(t, `{"Total":"-1500.10","VAT":300.02}`)

	var out struct {
		Total string      `json:"Total"`
		VAT   json.Number `json:"VAT"`
	}
	require.NoError(t, Decode(doc, &out))
	assert.Equal(t, "-1500.10", out.Total)
	assert.Equal(t, json.Number("300.02"), out.VAT)
}
