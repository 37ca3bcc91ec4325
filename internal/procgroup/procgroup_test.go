// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T, script string) (*exec.Cmd, <-chan struct{}) {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	// give the shell a moment to fork its children
	time.Sleep(100 * time.Millisecond)
	return cmd, done
}

func TestSetMakesGroupLeader(t *testing.T) {
	cmd, done := startGroup(t, "sleep 10")
	pid := cmd.Process.Pid

	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, pgid, "process should be group leader")

	require.NoError(t, Kill(cmd, syscall.SIGKILL))
	<-done
}

// running reports whether pid is alive. A zombie counts as dead: in
// containers without a reaping init, killed orphans linger as zombies.
func running(pid int) bool {
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		if _, perr := os.Stat("/proc/self/stat"); perr != nil {
			return syscall.Kill(pid, syscall.Signal(0)) == nil
		}
		return false
	}
	// state follows the parenthesised command name
	fields := strings.Fields(string(stat[bytes.LastIndexByte(stat, ')')+1:]))
	return len(fields) > 0 && fields[0] != "Z" && fields[0] != "X"
}

func TestKillReachesChildren(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 10 & echo $!; sleep 10")
	Set(cmd)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	child, err := strconv.Atoi(strings.TrimSpace(line))
	require.NoError(t, err)
	require.True(t, running(child))

	require.NoError(t, Kill(cmd, syscall.SIGKILL))
	_ = cmd.Wait()

	assert.Eventually(t, func() bool { return !running(child) }, 2*time.Second, 20*time.Millisecond,
		"background child %d survived the group kill", child)
	if running(child) {
		_ = syscall.Kill(child, syscall.SIGKILL)
	}
}

func TestTerminateGraceful(t *testing.T) {
	cmd, done := startGroup(t, "sleep 10")

	start := time.Now()
	require.NoError(t, Terminate(cmd, done, 2*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second, "SIGTERM alone should stop sleep")
}

func TestTerminateEscalatesToKill(t *testing.T) {
	cmd, done := startGroup(t, "trap '' TERM; while true; do sleep 0.05; done")

	start := time.Now()
	require.NoError(t, Terminate(cmd, done, 200*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestTerminateNilCommand(t *testing.T) {
	assert.NoError(t, Terminate(nil, nil, time.Millisecond))
	assert.NoError(t, Terminate(exec.Command("true"), nil, time.Millisecond))
}

func TestKillAlreadyExited(t *testing.T) {
	cmd := exec.Command("true")
	Set(cmd)
	require.NoError(t, cmd.Run())
	assert.NoError(t, Kill(cmd, syscall.SIGTERM))
}
