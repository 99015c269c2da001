package view

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	boom := errors.New("boom")

	failed := List([]int(nil), boom, "Could not load orders")
	assert.True(t, failed.Failed())
	assert.Equal(t, "Could not load orders", failed.Reason)
	assert.ErrorIs(t, failed.Err(), boom)

	empty := List([]int(nil), nil, "unused")
	assert.Equal(t, StatusEmpty, empty.Status)
	assert.NotNil(t, empty.Data)

	ok := List([]int{1, 2}, nil, "unused")
	assert.Equal(t, StatusOK, ok.Status)
	assert.Equal(t, []int{1, 2}, ok.Data)
}

func TestResultJSON(t *testing.T) {
	data, err := json.Marshal(List([]string(nil), nil, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"empty","data":[]}`, string(data))

	data, err = json.Marshal(Failed[[]string]("Could not load invoices", errors.New("x")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","data":null,"reason":"Could not load invoices"}`, string(data))
}
