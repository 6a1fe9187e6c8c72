package executil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outscale/bsud/pkg/bsuerrors"
)

func TestRunStrictSuccess(t *testing.T) {
	res, err := RunStrict(context.Background(), "echo", "hello")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hello\n", res.Stdout)
}

func TestRunStrictFailure(t *testing.T) {
	_, err := RunStrict(context.Background(), "false")
	require.Error(t, err)
	assert.True(t, bsuerrors.Is(err, bsuerrors.ExternalCommandFailed))
}

func TestRunLenientNeverFails(t *testing.T) {
	res, ok := RunLenient(context.Background(), "false")
	assert.False(t, ok)
	assert.False(t, res.Success)

	res, ok = RunLenient(context.Background(), "true")
	assert.True(t, ok)
	assert.True(t, res.Success)
}

func TestRunCapturesStderr(t *testing.T) {
	res, err := RunStrict(context.Background(), "sh", "-c", "echo out; echo err 1>&2; exit 1")
	require.Error(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 1, res.ExitCode)
}
