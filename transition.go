// Copyright 2026 The Pidns Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pidns

import (
	"errors"
	"io/fs"
	"os/exec"
	"runtime"
	"syscall"

	"code.cloudfoundry.org/lager/v3"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// Transitioner changes the PID namespace that processes forked later by
// the calling goroutine will start in.  Neither call moves the caller
// itself.
type Transitioner interface {
	// UnsharePID requests a new, anonymous PID namespace.
	UnsharePID() error
	// EnterPID selects the PID namespace referred to by path.
	EnterPID(path string) error
}

// The calling goroutine is locked to its OS thread and left that way: the
// change is per thread, and the fork must come from the same one.
type threadTransitioner struct{}

// ThreadTransitioner is the real Transitioner.
var ThreadTransitioner Transitioner = threadTransitioner{}

func (threadTransitioner) UnsharePID() error {
	runtime.LockOSThread()
	if err := unix.Unshare(unix.CLONE_NEWPID); err != nil {
		return &OpError{Op: "unshare", Err: err}
	}
	return nil
}

func (threadTransitioner) EnterPID(path string) error {
	runtime.LockOSThread()
	h, err := netns.GetFromPath(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &OpError{Op: "open", Path: path, Err: ErrNotFound}
		}
		return &OpError{Op: "open", Path: path, Err: err}
	}
	defer h.Close()

	if err := unix.Setns(int(h), unix.CLONE_NEWPID); err != nil {
		return &OpError{Op: "setns", Path: path, Err: err}
	}
	return nil
}

// Finalizer takes over in the child once the namespace is set up, and
// replaces the process with the user's command.  It only returns on
// failure.
type Finalizer interface {
	Finalize(argv []string) error
}

// ExecFinalizer mounts a /proc that matches the new PID namespace, then
// execs argv[0], looked up in PATH, with argv as its arguments.
type ExecFinalizer struct {
	ProcDir   string
	MountProc bool
	Env       []string

	mounter  Mounter
	logger   lager.Logger
	lookPath func(string) (string, error)
	exec     func(string, []string, []string) error
}

func NewExecFinalizer(logger lager.Logger, procDir string, mountProc bool, env []string, mounter Mounter) *ExecFinalizer {
	if mounter == nil {
		mounter = SysMounter
	}
	return &ExecFinalizer{
		ProcDir:   procDir,
		MountProc: mountProc,
		Env:       env,
		mounter:   mounter,
		logger:    logger.Session("finalize"),
		lookPath:  exec.LookPath,
		exec:      syscall.Exec,
	}
}

func (f *ExecFinalizer) Finalize(argv []string) error {
	if len(argv) == 0 {
		return &OpError{Op: "exec", Err: ErrInvalidArgument}
	}
	if f.MountProc {
		// Nothing may be mounted there; that is fine.
		_ = f.mounter.Unmount(f.ProcDir, unix.MNT_DETACH)
		err := f.mounter.Mount("proc", f.ProcDir, "proc",
			unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, "")
		if err != nil {
			f.logger.Error("mount-proc-failed", err)
			return &OpError{Op: "mount proc", Path: f.ProcDir, Err: err}
		}
	}

	path, err := f.lookPath(argv[0])
	if err != nil {
		return &OpError{Op: "exec", Path: argv[0], Err: err}
	}
	f.logger.Debug("exec", lager.Data{"path": path, "argv": argv})
	err = f.exec(path, argv, withoutStage(f.Env))
	return &OpError{Op: "exec", Path: path, Err: err}
}
