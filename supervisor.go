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
	"os"
	"os/signal"
	"strings"
	"syscall"

	"code.cloudfoundry.org/lager/v3"
)

// StageEnv is set in the environment of a re-executed child, and names the
// operation the child was forked for.
const StageEnv = "_PIDNS_STAGE"

// Stage names the operation a child process continues with.
type Stage string

const (
	StageCreate Stage = "create"
	StageAttach Stage = "attach"
)

// ChildMarker is handed to code that runs in the forked child.
type ChildMarker struct {
	Stage Stage
	Pid   int
}

var (
	// Signals from the terminal reach the child directly, since it is in
	// our process group.  The supervisor must neither die from them nor
	// stop on its own.
	droppedSignals = []os.Signal{
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTSTP,
		syscall.SIGTTIN,
		syscall.SIGTTOU,
	}
	// Signals aimed at the supervisor itself are passed on.
	forwardedSignals = []os.Signal{
		syscall.SIGTERM,
		syscall.SIGHUP,
		syscall.SIGUSR1,
		syscall.SIGUSR2,
	}
)

func forwarded(sig os.Signal) bool {
	for _, s := range forwardedSignals {
		if s == sig {
			return true
		}
	}
	return false
}

// procOps are the process primitives the supervisor is built on.
type procOps interface {
	start(path string, argv []string, attr *syscall.ProcAttr) (int, error)
	wait(pid int) (syscall.WaitStatus, error)
	kill(pid int, sig syscall.Signal) error
	raise(sig syscall.Signal) error
	notify(c chan<- os.Signal, sigs ...os.Signal)
	stopNotify(c chan<- os.Signal)
	getpid() int
	exit(code int)
}

type sysProcOps struct{}

func (sysProcOps) start(path string, argv []string, attr *syscall.ProcAttr) (int, error) {
	return syscall.ForkExec(path, argv, attr)
}

func (sysProcOps) wait(pid int) (syscall.WaitStatus, error) {
	var ws syscall.WaitStatus
	_, err := syscall.Wait4(pid, &ws, syscall.WUNTRACED, nil)
	return ws, err
}

func (sysProcOps) kill(pid int, sig syscall.Signal) error {
	return syscall.Kill(pid, sig)
}

func (sysProcOps) raise(sig syscall.Signal) error {
	signal.Reset(sig)
	return syscall.Kill(os.Getpid(), sig)
}

func (sysProcOps) notify(c chan<- os.Signal, sigs ...os.Signal) {
	signal.Notify(c, sigs...)
}

func (sysProcOps) stopNotify(c chan<- os.Signal) {
	signal.Stop(c)
}

func (sysProcOps) getpid() int {
	return os.Getpid()
}

func (sysProcOps) exit(code int) {
	os.Exit(code)
}

// Supervisor forks the child that ends up inside a namespace, and then
// stands in for it, so that whoever started us (usually a shell doing job
// control) cannot tell there is an extra process.
//
// A Go program cannot keep running Go code in the child half of a fork,
// so the child is a fresh copy of this program, started with the same
// arguments and with StageEnv set.  When that copy reaches the same call,
// it learns that it is the child and carries on from there.
type Supervisor struct {
	Exe   string     // Program started as the child
	Args  []string   // Its arguments, normally os.Args
	Env   []string   // Our environment; the child gets it plus StageEnv
	Files []*os.File // Child stdin, stdout, and stderr

	logger lager.Logger
	ops    procOps
}

// NewSupervisor returns a Supervisor that re-executes the running program.
func NewSupervisor(logger lager.Logger) *Supervisor {
	return &Supervisor{
		Exe:    "/proc/self/exe",
		Args:   os.Args,
		Env:    os.Environ(),
		Files:  []*os.File{os.Stdin, os.Stdout, os.Stderr},
		logger: logger.Session("supervisor"),
		ops:    sysProcOps{},
	}
}

func (s *Supervisor) stage() Stage {
	for _, kv := range s.Env {
		if strings.HasPrefix(kv, StageEnv+"=") {
			return Stage(kv[len(StageEnv)+1:])
		}
	}
	return ""
}

// InChild reports whether this process is a forked child.
func (s *Supervisor) InChild() bool {
	return s.stage() != ""
}

// ForkAndSuperviseOrReturnChild forks a child for stage.  In the child it
// returns a marker.  In the parent it supervises the child until it is
// gone and then exits the process with the child's status; it only
// returns there if forking fails.
//
// The child gets its own mount namespace.  It is forked from the calling
// OS thread, so any PID namespace change made on that thread beforehand
// applies to it.
func (s *Supervisor) ForkAndSuperviseOrReturnChild(stage Stage) (*ChildMarker, error) {
	if cur := s.stage(); cur != "" {
		if cur != stage {
			return nil, &OpError{Op: "fork " + string(stage), Name: string(cur), Err: ErrInvalidArgument}
		}
		return &ChildMarker{Stage: stage, Pid: s.ops.getpid()}, nil
	}

	logger := s.logger.Session("fork", lager.Data{"stage": stage})

	// Catch signals before the child exists, so none slip through.
	sigs := make(chan os.Signal, 16)
	s.ops.notify(sigs, append(append([]os.Signal{}, droppedSignals...), forwardedSignals...)...)
	defer s.ops.stopNotify(sigs)

	fds := make([]uintptr, 0, len(s.Files))
	for _, f := range s.Files {
		fds = append(fds, f.Fd())
	}
	pid, err := s.ops.start(s.Exe, s.Args, &syscall.ProcAttr{
		Env:   childEnv(s.Env, stage),
		Files: fds,
		Sys:   &syscall.SysProcAttr{Cloneflags: syscall.CLONE_NEWNS},
	})
	if err != nil {
		logger.Error("fork-failed", err)
		return nil, &OpError{Op: "fork", Path: s.Exe, Err: err}
	}
	logger.Info("forked", lager.Data{"pid": pid})

	done := make(chan struct{})
	go s.forward(pid, sigs, done)
	code := s.supervise(pid)
	close(done)

	logger.Info("child-gone", lager.Data{"pid": pid, "status": code})
	s.ops.exit(code)

	// Only reached when exit has been stubbed out.
	return nil, nil
}

func (s *Supervisor) forward(pid int, sigs <-chan os.Signal, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case sig := <-sigs:
			if ss, ok := sig.(syscall.Signal); ok && forwarded(ss) {
				if err := s.ops.kill(pid, ss); err != nil {
					s.logger.Error("forward-failed", err, lager.Data{"signal": ss.String()})
				}
			}
		}
	}
}

// supervise waits on the child until it has exited or been killed, and
// returns the status this process should exit with.
func (s *Supervisor) supervise(pid int) int {
	r := &relay{child: pid, ops: s.ops, logger: s.logger.Session("relay", lager.Data{"pid": pid})}
	for r.state != finished {
		ws, err := s.ops.wait(pid)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			r.logger.Error("wait-failed", err)
			return 1
		}
		r.step(ws)
	}
	return r.code
}

type relayState int

const (
	running relayState = iota
	suspended
	finished
)

// relay mirrors the child's job control state onto the supervisor.
//
//	running   --child stopped--> suspended  (stop ourselves)
//	suspended --we resumed-->    running    (continue the child)
//	running   --child exited-->  finished   (exit with its status)
//	running   --child killed-->  finished   (die by the same signal)
type relay struct {
	state  relayState
	child  int
	code   int
	ops    procOps
	logger lager.Logger
}

func (r *relay) step(ws syscall.WaitStatus) {
	switch {
	case ws.Stopped():
		r.state = suspended
		r.logger.Info("child-stopped", lager.Data{"signal": ws.StopSignal().String()})
		if err := r.ops.kill(r.ops.getpid(), syscall.SIGSTOP); err != nil {
			r.logger.Error("stop-self-failed", err)
		}
		// We only get here once somebody has continued us.
		r.state = running
		if err := r.ops.kill(r.child, syscall.SIGCONT); err != nil {
			r.logger.Error("continue-child-failed", err)
		}
	case ws.Exited():
		r.code = ws.ExitStatus()
		r.state = finished
	case ws.Signaled():
		sig := ws.Signal()
		r.logger.Info("child-killed", lager.Data{"signal": sig.String()})
		if err := r.ops.raise(sig); err != nil {
			r.logger.Error("raise-failed", err)
		}
		r.code = 1
		r.state = finished
	}
}

func withoutStage(env []string) []string {
	rv := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if !strings.HasPrefix(kv, StageEnv+"=") {
			rv = append(rv, kv)
		}
	}
	return rv
}

func childEnv(env []string, stage Stage) []string {
	return append(withoutStage(env), StageEnv+"="+string(stage))
}
