package domain

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := NewError(KindConnectionLost, "send", "write failed", io.ErrClosedPipe)
	wrapped := fmt.Errorf("flush: %w", err)

	assert.ErrorIs(t, wrapped, ErrConnectionLost)
	assert.ErrorIs(t, wrapped, io.ErrClosedPipe)
	assert.NotErrorIs(t, wrapped, ErrAckTimeout)
	assert.Equal(t, KindConnectionLost, KindOf(wrapped))
	assert.Equal(t, "send: ConnectionLost: write failed: io: read/write on closed pipe", err.Error())
}

func TestKind_Terminal(t *testing.T) {
	assert.True(t, IsTerminal(NewError(KindConnectionTimeout, "", "", nil)))
	assert.True(t, IsTerminal(NewError(KindAckTimeout, "", "", nil)))
	assert.False(t, IsTerminal(NewError(KindMessageTooLarge, "", "", nil)))
	assert.False(t, IsTerminal(NewError(KindProtocolViolation, "", "", nil)))
	assert.False(t, IsTerminal(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}
