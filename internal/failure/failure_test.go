package failure

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := New(MissingCredential, "API key not found", nil)

	assert.True(t, errors.Is(err, MissingCredential))
	assert.False(t, errors.Is(err, TransportFailure))

	wrapped := fmt.Errorf("cycle: %w", err)
	assert.True(t, errors.Is(wrapped, MissingCredential))
}

func TestUnwrapReachesCause(t *testing.T) {
	err := New(TransportFailure, "connection failed", io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.True(t, errors.Is(err, TransportFailure))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Unknown},
		{"plain", errors.New("boom"), Unknown},
		{"classified", New(EmptyResult, "empty", nil), EmptyResult},
		{"wrapped", fmt.Errorf("x: %w", New(BackendRejected, "503", nil)), BackendRejected},
		{"bare kind", MutationRejected, MutationRejected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "API error 401", UserMessage(New(BackendRejected, "API error 401", nil)))
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "malformed_response", MalformedResponse.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
	assert.Equal(t, "failure: no_selection", NoSelectionAvailable.Error())
}
