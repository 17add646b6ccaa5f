package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{Network, 10},
		{Config, 11},
		{Permission, 12},
		{Validation, 13},
		{Dependency, 14},
		{GPG, 15},
		{CustomChecker, 16},
		{Installation, 17},
		{Cache, 20},
		{Lock, 20},
	}
	for _, c := range cases {
		got := ExitCode(New(c.kind, "boom"))
		assert.Equalf(t, c.want, got, "kind %s", c.kind)
	}
}

func TestExitCodeNilIsZero(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
}

func TestExitCodeUnknownErrorCollapsesToOne(t *testing.T) {
	assert.Equal(t, 1, ExitCode(errors.New("plain")))
}

func TestWrapPreservesCauseAndKind(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(Network, cause, "fetch releases")

	require.ErrorIs(t, err, cause)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, Network, kind)
}

func TestWithAppIncludesAppKeyInMessage(t *testing.T) {
	err := New(Installation, "make failed").WithApp("VeraCrypt")
	assert.Contains(t, err.Error(), "VeraCrypt")
}

func TestUserVisibleKinds(t *testing.T) {
	assert.True(t, UserVisible(Network))
	assert.True(t, UserVisible(Permission))
	assert.True(t, UserVisible(GPG))
	assert.True(t, UserVisible(Installation))
	assert.False(t, UserVisible(Validation))
	assert.False(t, UserVisible(Cache))
}
