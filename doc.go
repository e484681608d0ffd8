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

// Package pidns manages named, persistent Linux PID namespaces.
//
// A namespace is created once under a human chosen name and is exposed as
// a directory in a shared run directory (normally /var/run/pidns), onto
// which the creating process's /proc/self/ns directory is bind mounted.
// Later, unrelated processes can enter the same PID namespace by name,
// find out which named namespace a process lives in, or destroy the
// handle.  Only process-ID isolation is provided; there is no network,
// user, or cgroup isolation here, and this is not a container runtime.
//
// Entering a PID namespace only affects processes created afterwards, so
// both Create and Attach fork.  The parent stays behind as a transparent
// Supervisor that mirrors the child's stop, continue and exit behavior, so
// that shells and job control see a single well behaved process.
//
// The Store is shared, crash tolerant state.  No locks are taken; every
// operation that finds a stale handle (a directory whose namespace is
// gone) cleans it up before proceeding.
package pidns
