package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annie25726/perfume-assistant/internal/tool"
	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
)

func accountingTools() []tool.Descriptor {
	return []tool.Descriptor{
		{Name: "add_record", Description: "新增一筆記帳", InputSchema: json.RawMessage(`{
			"type":"object",
			"properties":{"amount":{"type":"number"},"category":{"type":"string"},"description":{"type":"string"}},
			"required":["amount","category"]}`)},
		{Name: "query_balance", Description: "查詢帳戶餘額"},
		{Name: "list_transactions", Description: "List recent transactions"},
		{Name: ""},
	}
}

func TestResolve(t *testing.T) {
	r := New(accountingTools()...)
	require.Equal(t, 3, r.Len())

	cases := map[string]string{
		"get_balance":       "query_balance",
		"list_transactions": "list_transactions",
		"add_transaction":   "add_record",
		"":                  "add_record",
		"get_categories":    "add_record",
	}
	for in, want := range cases {
		got, ok := r.Resolve(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := New().Resolve("get_balance")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	r := New(accountingTools()...)

	require.NoError(t, r.Validate("add_record", map[string]any{"amount": -50.0, "category": "food"}))
	require.NoError(t, r.Validate("query_balance", map[string]any{"detailed": false}))

	err := r.Validate("add_record", map[string]any{"category": "food"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrInvalidArg))

	err = r.Validate("add_record", map[string]any{"amount": "fifty", "category": "food"})
	assert.True(t, errors.Is(err, perrors.ErrInvalidArg))

	err = r.Validate("missing", nil)
	assert.True(t, errors.Is(err, perrors.ErrNotFound))
}
