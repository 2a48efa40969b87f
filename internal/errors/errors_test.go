package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		code ErrorCode
	}{
		{"forbidden", Forbidden(), CodeForbidden},
		{"auth required", AuthenticationRequired(), CodeAuthenticationRequired},
		{"token expired", TokenExpired(), CodeAuthenticationTokenExpired},
		{"token invalid", TokenInvalid(), CodeAuthenticationTokenInvalid},
		{"type not found", TypeNotFound("Order"), CodeTypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Message)
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("resolve Order.one: %w", Forbidden().WithData("entity", "43"))

	assert.True(t, stderrors.Is(wrapped, Forbidden()))
	assert.False(t, stderrors.Is(wrapped, AuthenticationRequired()))
	assert.True(t, Is(wrapped, CodeForbidden))
	assert.True(t, IsRecognized(wrapped))
	assert.False(t, IsRecognized(stderrors.New("boom")))
	assert.Equal(t, CodeUnknown, Code(stderrors.New("boom")))
}

func TestNormalize(t *testing.T) {
	internal := stderrors.New("pq: relation \"orders\" does not exist")

	t.Run("development passes through", func(t *testing.T) {
		assert.Same(t, internal, Normalize(internal, false))
	})

	t.Run("production hides unrecognized errors", func(t *testing.T) {
		got := Normalize(internal, true)
		require.True(t, Is(got, CodeUnknown))
		assert.NotContains(t, got.Error(), "orders")
	})

	t.Run("production keeps recognized errors", func(t *testing.T) {
		err := Forbidden()
		assert.Same(t, err, Normalize(err, true))
	})

	t.Run("production strips cause from unknown", func(t *testing.T) {
		got := Normalize(Unknown(internal), true)
		assert.NotContains(t, got.Error(), "orders")
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Normalize(nil, true))
	})
}

func TestMarshalJSON(t *testing.T) {
	data, err := json.Marshal(TypeNotFound("Missing"))
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "TypeNotFound", out["name"])
	assert.Equal(t, "Type not found, please check name", out["message"])
	assert.Equal(t, map[string]interface{}{"name": "Missing"}, out["data"])
}
