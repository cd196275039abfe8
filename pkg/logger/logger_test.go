package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevelString(t *testing.T) {
	for _, lvl := range []string{"debug", "INFO", "", "warn", "warning", " error "} {
		assert.NoError(t, SetLevelString(lvl), lvl)
	}
	assert.Error(t, SetLevelString("verbose"))
}

func TestGetBeforeInitDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Get().Info(context.Background(), "dropped", String("k", "v"))
	})
}

func TestInitAndNamed(t *testing.T) {
	require.NoError(t, Init("debug"))
	l := Named("scanner")
	assert.NotNil(t, l)
	assert.NotPanics(t, func() {
		l.Warn(context.Background(), "hello", Int("n", 1), Error(errors.New("boom")))
	})
	assert.Error(t, Init("nope"))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := Nop()
	assert.Equal(t, l, OrNop(l))
}
