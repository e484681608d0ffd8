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
)

var (
	ErrInvalidArgument = errors.New("Invalid argument")
	ErrNotFound        = errors.New("Namespace not found")
	ErrNameInUse       = errors.New("Namespace name in use")
	ErrExist           = errors.New("Namespace already exists")
)

// OpError records a failed step of a namespace operation, along with the
// namespace name or path it was applied to.  Err is either one of the
// sentinel errors above, or the underlying system error.
type OpError struct {
	Op   string
	Name string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	s := e.Op
	if e.Name != "" {
		s += " \"" + e.Name + "\""
	}
	if e.Path != "" {
		s += " " + e.Path
	}
	return s + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}
