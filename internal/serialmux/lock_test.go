package serialmux

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockPort_Exclusive(t *testing.T) {
	dir := t.TempDir()

	first, err := LockPort("/dev/ttyACM0", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "platesort-ttyACM0.lock"), first.Path())

	_, err = LockPort("/dev/ttyACM0", dir)
	assert.True(t, errors.Is(err, ErrPortBusy), "got %v", err)

	other, err := LockPort("/dev/ttyUSB0", dir)
	require.NoError(t, err)
	require.NoError(t, other.Unlock())

	require.NoError(t, first.Unlock())
	again, err := LockPort("/dev/ttyACM0", dir)
	require.NoError(t, err)
	require.NoError(t, again.Unlock())
}
