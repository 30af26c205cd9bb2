package dserr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := Newf(CodeBadRequest, "app %s cannot access app %s's data", "a", "b")
	assert.Equal(t, "BAD_REQUEST: app a cannot access app b's data", err.Error())
}

func TestPredicates_MatchWrappedErrors(t *testing.T) {
	base := New(CodeContention, "entity group lock timeout")
	wrapped := fmt.Errorf("commit: %w", base)

	assert.True(t, IsContention(wrapped))
	assert.False(t, IsBadRequest(wrapped))
	assert.Equal(t, CodeContention, CodeOf(wrapped))
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("boom")))
}

func TestWithDetail(t *testing.T) {
	err := New(CodeNeedsIndex, "no matching composite index").
		WithDetail("kind", "Song").
		WithDetail("properties", "composer ASC, length DESC")

	assert.Equal(t, "Song", err.Detail["kind"])
	assert.True(t, IsNeedsIndex(err))
}
