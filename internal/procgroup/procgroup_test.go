//go:build linux

package procgroup

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetConfiguresProcessGroup(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	Set(cmd)
	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setpgid)
}

func TestKillGroupTerminatesChild(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	Set(cmd)
	require.NoError(t, cmd.Start())

	err := KillGroup(cmd.Process.Pid, 2*time.Second, 5*time.Second)
	assert.NoError(t, err)

	// Reap; a signal death is the expected outcome.
	waitErr := cmd.Wait()
	if waitErr != nil {
		var exitErr *exec.ExitError
		require.ErrorAs(t, waitErr, &exitErr)
	}
}

func TestKillGroupDeadChild(t *testing.T) {
	cmd := exec.Command("true")
	Set(cmd)
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	// Killing an already-exited group is not an error.
	assert.NoError(t, KillGroup(cmd.Process.Pid, 100*time.Millisecond, time.Second))
}

func TestKillGroupInvalidPid(t *testing.T) {
	assert.NoError(t, KillGroup(0, 0, 0))
	assert.NoError(t, KillGroup(-5, 0, 0))
}
