package domerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode_WalksChain(t *testing.T) {
	base := New(CodeWrongState, "auction not open")
	wrapped := Wrap(base, CodeInternal, "bid rejected")

	assert.True(t, HasCode(wrapped, CodeInternal))
	assert.True(t, HasCode(wrapped, CodeWrongState))
	assert.False(t, HasCode(wrapped, CodeBidTooHigh))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeBidTooHigh, CodeOf(New(CodeBidTooHigh, "above ceiling")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestWrap_NilPassthrough(t *testing.T) {
	require.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestUnwrap_PreservesCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := Wrap(cause, CodeInternal, "store write failed")
	assert.ErrorIs(t, err, cause)
}

func TestMessage(t *testing.T) {
	err := Newf(CodeDuplicate, "vote already cast for request %d", 7)
	assert.Equal(t, "vote already cast for request 7", Message(err))
	assert.Equal(t, "duplicate: vote already cast for request 7", fmt.Sprint(err))
}
