package mount

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-mkimg/config"
	"go-mkimg/log"
	"go-mkimg/process"
)

func newTestUnmounter(ml *process.MockLauncher, logger log.LibraryLogger) *ScriptUnmounter {
	cfg := config.Default()
	cfg.ScriptsPath = "/opt/mkimg/scripts"
	u := NewScriptUnmounter(cfg, ml, map[string]string{"FROM_ENV_FILE": "yes"}, logger)
	u.RetryDelay = time.Millisecond
	return u
}

func TestScriptUnmounter_Command(t *testing.T) {
	ml := process.NewMockLauncher()
	u := newTestUnmounter(ml, nil)

	require.NoError(t, u.ForceUnmount(context.Background(), nil))

	calls := ml.CallsFor("unmount.sh")
	require.Len(t, calls, 1)

	cmd := calls[0]
	assert.Equal(t, "/opt/mkimg/scripts/unmount.sh", cmd.Path)
	assert.Equal(t, "/opt/mkimg/scripts", cmd.Dir)
	assert.Equal(t, "1", cmd.Env["FORCE"])
	assert.Equal(t, "yes", cmd.Env["FROM_ENV_FILE"])
	assert.True(t, cmd.InheritEnv)
}

func TestScriptUnmounter_ForceWinsOverEnv(t *testing.T) {
	ml := process.NewMockLauncher()
	u := newTestUnmounter(ml, nil)
	u.Env = map[string]string{"FORCE": "0"}

	require.NoError(t, u.ForceUnmount(context.Background(), nil))
	assert.Equal(t, "1", ml.CallsFor("unmount.sh")[0].Env["FORCE"])
}

func TestScriptUnmounter_NonZeroExit(t *testing.T) {
	ml := process.NewMockLauncher()
	ml.On("unmount.sh", process.MockSpec{ExitCode: 32})
	logger := log.NewMemoryLogger()
	u := newTestUnmounter(ml, logger)

	err := u.ForceUnmount(context.Background(), nil)

	var unmountErr *ErrUnmountFailed
	require.True(t, errors.As(err, &unmountErr), "error type = %T", err)
	assert.Equal(t, 32, unmountErr.ExitCode)
	assert.Equal(t, 1, unmountErr.Tries)
	assert.True(t, logger.HasMessageWithLevel("WARN", "exited with code 32"))
}

func TestScriptUnmounter_Retries(t *testing.T) {
	ml := process.NewMockLauncher()
	ml.On("unmount.sh",
		process.MockSpec{ExitCode: 1},
		process.MockSpec{ExitCode: 1},
		process.MockSpec{ExitCode: 0},
	)
	u := newTestUnmounter(ml, nil)
	u.Retries = 5

	require.NoError(t, u.ForceUnmount(context.Background(), nil))
	assert.Equal(t, 3, ml.CallCount("unmount.sh"))
}

func TestScriptUnmounter_Timeout(t *testing.T) {
	ml := process.NewMockLauncher()
	ml.On("unmount.sh", process.MockSpec{Hang: true})
	u := newTestUnmounter(ml, nil)
	u.Timeout = 20 * time.Millisecond

	err := u.ForceUnmount(context.Background(), nil)

	var unmountErr *ErrUnmountFailed
	require.True(t, errors.As(err, &unmountErr))
	assert.True(t, unmountErr.TimedOut)
	assert.Equal(t, 1, ml.Processes("unmount.sh")[0].TerminateCalls())
}

func TestScriptUnmounter_SpawnFailure(t *testing.T) {
	ml := process.NewMockLauncher()
	cause := errors.New("no such file or directory")
	ml.On("unmount.sh", process.MockSpec{SpawnErr: cause})
	u := newTestUnmounter(ml, nil)

	err := u.ForceUnmount(context.Background(), nil)
	assert.ErrorIs(t, err, cause)
}
