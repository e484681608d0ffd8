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

	"code.cloudfoundry.org/lager/v3"
	"golang.org/x/sys/unix"
)

// DefaultSelfNSDir is bound onto a handle directory to name a namespace.
const DefaultSelfNSDir = "/proc/self/ns"

// Lifecycle creates, enters and destroys named namespaces.  Create and
// Attach run twice: once in the invoking process, which prepares the
// namespace and becomes the supervisor, and once in the forked child,
// which finishes the job and becomes the user's command.
type Lifecycle struct {
	Store        *Store
	Supervisor   *Supervisor
	Transitioner Transitioner
	Finalizer    Finalizer
	Mounter      Mounter
	SelfNSDir    string

	logger lager.Logger
}

func NewLifecycle(logger lager.Logger, store *Store, sup *Supervisor, fin Finalizer) *Lifecycle {
	return &Lifecycle{
		Store:        store,
		Supervisor:   sup,
		Transitioner: ThreadTransitioner,
		Finalizer:    fin,
		Mounter:      SysMounter,
		SelfNSDir:    DefaultSelfNSDir,
		logger:       logger.Session("lifecycle"),
	}
}

func checkArgs(name string, argv []string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	if len(argv) == 0 || argv[0] == "" {
		return &OpError{Op: "no command", Name: name, Err: ErrInvalidArgument}
	}
	return nil
}

// Create makes a new PID namespace called name and runs argv as the
// first process in it.  A live namespace of the same name, or one another
// create is still setting up, is refused with ErrNameInUse; a stale one is
// reclaimed first.  Of two creates racing for one name, the one whose
// mkdir fails gets ErrExist.  On success Create does not return.
func (l *Lifecycle) Create(name string, argv []string) error {
	if err := checkArgs(name, argv); err != nil {
		return err
	}
	logger := l.logger.Session("create", lager.Data{"name": name})

	if !l.Supervisor.InChild() {
		if l.Store.IsLive(name) {
			return &OpError{Op: "create", Name: name, Err: ErrNameInUse}
		}
		// Leftovers from an earlier crash.
		if err := l.Store.Reclaim(name); err != nil {
			return err
		}
		if err := l.Store.EnsureRunDirShared(); err != nil {
			return err
		}
		if _, err := l.Store.CreateHandleDir(name); err != nil {
			return err
		}
		logger.Info("prepared")

		if err := l.Transitioner.UnsharePID(); err != nil {
			logger.Error("unshare-failed", err)
			return err
		}
		logger.Info("transitioned")
	}

	child, err := l.Supervisor.ForkAndSuperviseOrReturnChild(StageCreate)
	if err != nil || child == nil {
		return err
	}
	logger.Info("supervised", lager.Data{"pid": child.Pid})

	// This bind is what keeps the name around once we are gone.
	path := l.Store.PathOf(name)
	if err := l.Mounter.Mount(l.SelfNSDir, path, "none", unix.MS_BIND, ""); err != nil {
		logger.Error("bind-failed", err)
		return &OpError{Op: "bind " + l.SelfNSDir, Name: name, Path: path, Err: err}
	}
	if err := l.isolateMounts(); err != nil {
		return err
	}
	return l.Finalizer.Finalize(argv)
}

// Attach runs argv inside the existing namespace called name.  On success
// it does not return.
func (l *Lifecycle) Attach(name string, argv []string) error {
	if err := checkArgs(name, argv); err != nil {
		return err
	}
	logger := l.logger.Session("attach", lager.Data{"name": name})

	if !l.Supervisor.InChild() {
		if !l.Store.IsLive(name) {
			if err := l.Store.Reclaim(name); err != nil && !errors.Is(err, ErrNameInUse) {
				logger.Error("reclaim-failed", err)
			}
			return &OpError{Op: "attach", Name: name, Err: ErrNotFound}
		}
		if err := l.Transitioner.EnterPID(l.Store.NamespacePath(name)); err != nil {
			logger.Error("enter-failed", err)
			var oe *OpError
			if errors.As(err, &oe) && errors.Is(err, ErrNotFound) {
				oe.Name = name
			}
			return err
		}
		logger.Info("transitioned")
	}

	child, err := l.Supervisor.ForkAndSuperviseOrReturnChild(StageAttach)
	if err != nil || child == nil {
		return err
	}
	logger.Info("supervised", lager.Data{"pid": child.Pid})

	if err := l.isolateMounts(); err != nil {
		return err
	}
	return l.Finalizer.Finalize(argv)
}

// Destroy removes the handle for name.  Destroying a name that does not
// exist succeeds.
func (l *Lifecycle) Destroy(name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	l.logger.Info("destroy", lager.Data{"name": name})
	return l.Store.Cleanup(name)
}

// The child already has a mount namespace of its own.  Making the root a
// slave keeps its mounts, such as the fresh /proc, from flowing back out.
func (l *Lifecycle) isolateMounts() error {
	if err := l.Mounter.Mount("", "/", "none", unix.MS_SLAVE|unix.MS_REC, ""); err != nil {
		l.logger.Error("make-rslave-failed", err)
		return &OpError{Op: "mount --make-rslave", Path: "/", Err: err}
	}
	return nil
}
