package process

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ValidBackends(t *testing.T) {
	for _, name := range []string{"exec", "mock"} {
		l, err := New(name, nil)
		require.NoError(t, err, "New(%q)", name)
		assert.NotNil(t, l)
	}

	l, _ := New("mock", nil)
	_, ok := l.(*MockLauncher)
	assert.True(t, ok, "New(\"mock\") returned %T, want *MockLauncher", l)
}

func TestNew_InvalidBackend(t *testing.T) {
	l, err := New("nonexistent", nil)
	assert.Nil(t, l)

	var unknownErr *ErrUnknownBackend
	require.True(t, errors.As(err, &unknownErr), "error type = %T, want *ErrUnknownBackend", err)
	assert.Equal(t, "nonexistent", unknownErr.Backend)
}

func TestRegister_Duplicate(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Register() with duplicate name should panic")
		}
	}()

	Register("mock", nil)
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "./unmount.sh", (&Command{Path: "./unmount.sh"}).String())
	assert.Equal(t, "./cp.sh .", (&Command{Path: "./cp.sh", Args: []string{"."}}).String())
}

func TestCommand_Environ(t *testing.T) {
	t.Setenv("MKIMG_TEST_INHERITED", "parent")
	t.Setenv("MKIMG_TEST_OVERRIDE", "parent")

	c := &Command{
		Env: map[string]string{
			"MKIMG_TEST_OVERRIDE": "child",
			"FORCE":               "1",
		},
		InheritEnv: true,
	}
	env := c.Environ()

	assert.Contains(t, env, "MKIMG_TEST_INHERITED=parent")
	assert.Contains(t, env, "MKIMG_TEST_OVERRIDE=child")
	assert.NotContains(t, env, "MKIMG_TEST_OVERRIDE=parent")
	assert.Contains(t, env, "FORCE=1")

	// Overrides come last, sorted
	n := len(env)
	assert.Equal(t, []string{"FORCE=1", "MKIMG_TEST_OVERRIDE=child"}, env[n-2:])
}

func TestCommand_EnvironIsolated(t *testing.T) {
	c := &Command{Env: map[string]string{"NAME": "disk.img"}}
	assert.Equal(t, []string{"NAME=disk.img"}, c.Environ())
	assert.Empty(t, (&Command{}).Environ())
}

func TestErrSpawnFailed(t *testing.T) {
	cause := os.ErrNotExist
	err := error(&ErrSpawnFailed{Command: "make_disk_image.sh", Err: cause})

	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "make_disk_image.sh")
}

func TestTerminateResult_String(t *testing.T) {
	assert.Equal(t, "already-exited", AlreadyExited.String())
	assert.Equal(t, "signaled", Signaled.String())
	assert.Equal(t, "TerminateResult(7)", TerminateResult(7).String())
}
