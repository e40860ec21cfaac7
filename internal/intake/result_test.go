package intake

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult(t *testing.T) {
	errBoom := errors.New("boom")

	ok := Attempt(func() (int, error) { return strconv.Atoi("42") })
	assert.True(t, ok.IsOk())
	assert.Equal(t, 42, ok.UnwrapOr(0))
	assert.Equal(t, 42, ok.UnwrapOrElse(func(error) int { return -1 }))

	failed := Fail[int](errBoom)
	assert.False(t, failed.IsOk())
	assert.ErrorIs(t, failed.Err(), errBoom)
	assert.Equal(t, 7, failed.UnwrapOr(7))

	var seen error
	assert.Equal(t, -1, failed.UnwrapOrElse(func(err error) int { seen = err; return -1 }))
	assert.ErrorIs(t, seen, errBoom)
}

func TestResult_Ensure(t *testing.T) {
	errEmpty := errors.New("empty")
	nonEmpty := func(s string) bool { return s != "" }

	assert.Equal(t, "x", Ok("x").Ensure(nonEmpty, errEmpty).UnwrapOr("fallback"))

	blank := Ok("").Ensure(nonEmpty, errEmpty)
	assert.ErrorIs(t, blank.Err(), errEmpty)
	assert.Equal(t, "fallback", blank.UnwrapOr("fallback"))

	errBoom := errors.New("boom")
	assert.ErrorIs(t, Fail[string](errBoom).Ensure(nonEmpty, errEmpty).Err(), errBoom)
}
