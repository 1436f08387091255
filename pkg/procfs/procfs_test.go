// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package procfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func writeProc(t *testing.T, root string, pid, name, content string) {
	t.Helper()
	dir := filepath.Join(root, pid)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestParseStat(t *testing.T) {
	tests := []struct {
		name     string
		stat     string
		wantPpid uint32
		wantComm string
		wantErr  bool
	}{
		{"simple", "1234 (bash) S 1000 1234 1234 0", 1000, "bash", false},
		{"spaces", "42 (tmux: server) S 1 42 42", 1, "tmux: server", false},
		{"parens", "7 (a) b) (c) R 3 7 7", 3, "a) b) (c", false},
		{"truncated", "7 (x) S", 0, "", true},
		{"garbage", "no parens here", 0, "", true},
		{"bad ppid", "7 (x) S abc", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ppid, comm, err := parseStat([]byte(tt.stat))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPpid, ppid)
			assert.Equal(t, tt.wantComm, string(comm))
		})
	}
}

func TestReader_Task(t *testing.T) {
	procRoot := t.TempDir()
	cgroupRoot := t.TempDir()

	writeProc(t, procRoot, "200", "stat", "200 (sshd) S 1 200 200 0")
	writeProc(t, procRoot, "300", "stat", "300 (bash) S 200 300 300 0")
	writeProc(t, procRoot, "300", "cgroup", "0::/system.slice/ssh.service\n")
	require.NoError(t, os.MkdirAll(filepath.Join(cgroupRoot, "system.slice", "ssh.service"), 0o755))

	var st unix.Stat_t
	require.NoError(t, unix.Stat(filepath.Join(cgroupRoot, "system.slice", "ssh.service"), &st))

	r := Reader{ProcRoot: procRoot, CgroupRoot: cgroupRoot}
	task, err := r.Task(300)
	require.NoError(t, err)

	assert.Equal(t, uint32(300), task.PID())
	assert.Equal(t, uint32(200), task.ParentPID())
	assert.Equal(t, "bash", string(task.Comm()))
	assert.Equal(t, "sshd", string(task.ParentComm()))
	assert.Equal(t, st.Ino, task.CgroupID())
}

func TestReader_TaskDegrades(t *testing.T) {
	procRoot := t.TempDir()
	writeProc(t, procRoot, "10", "stat", "10 (orphan) S 9 10 10 0")
	writeProc(t, procRoot, "10", "cgroup", "1:name=systemd:/\n")

	r := Reader{ProcRoot: procRoot, CgroupRoot: t.TempDir()}
	task, err := r.Task(10)
	require.NoError(t, err)

	// Parent is gone and there is no cgroup v2 line
	assert.Empty(t, task.ParentComm())
	assert.Zero(t, task.CgroupID())

	_, err = r.Task(11)
	assert.Error(t, err)
}

func TestReader_Defaults(t *testing.T) {
	var r Reader
	assert.Equal(t, DefaultProcRoot, r.procRoot())
	assert.Equal(t, DefaultCgroupRoot, r.cgroupRoot())
}
