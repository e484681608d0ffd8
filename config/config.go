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

// Package config loads the settings shared by the pidns commands.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"code.cloudfoundry.org/lager/v3"
)

const (
	DefaultPath = "/etc/pidns/config.json"

	// Environment variables consulted by Load.
	PathEnv   = "PIDNS_CONFIG"
	RunDirEnv = "PIDNS_RUN_DIR"
)

type Config struct {
	RunDir        string `json:"run_dir"`
	ProcDir       string `json:"proc_dir"`
	LogLevel      string `json:"log_level"`
	ListenAddress string `json:"listen_address"`
	MountProc     *bool  `json:"mount_proc,omitempty"`
	SweepInterval string `json:"sweep_interval"`
}

func DefaultConfig() Config {
	mount := true
	return Config{
		RunDir:        "/var/run/pidns",
		ProcDir:       "/proc",
		LogLevel:      "fatal",
		ListenAddress: "127.0.0.1:8321",
		MountProc:     &mount,
		SweepInterval: "1m",
	}
}

// Unmarshal decodes input over the defaults, so that a file only needs to
// name the settings it changes.
func Unmarshal(input io.Reader) (Config, error) {
	return UnmarshalOver(DefaultConfig(), input)
}

// UnmarshalOver is Unmarshal with base in place of the defaults.
func UnmarshalOver(base Config, input io.Reader) (Config, error) {
	c := base
	decoder := json.NewDecoder(input)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&c); err != nil {
		return c, fmt.Errorf("json decode: %s", err)
	}
	return c, nil
}

func (c Config) Marshal(output io.Writer) error {
	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(&c); err != nil {
		return fmt.Errorf("json encode: %s", err)
	}
	return nil
}

// ApplyEnv overrides settings from the environment, as read by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(RunDirEnv); v != "" {
		c.RunDir = v
	}
}

type ValidatedConfig struct {
	RunDir        string
	ProcDir       string
	LogLevel      lager.LogLevel
	ListenAddress string
	MountProc     bool
	SweepInterval time.Duration
}

var levels = map[string]lager.LogLevel{
	"debug": lager.DEBUG,
	"info":  lager.INFO,
	"error": lager.ERROR,
	"fatal": lager.FATAL,
}

// ParseLogLevel maps a level name to a lager.LogLevel.
func ParseLogLevel(s string) (lager.LogLevel, error) {
	if l, ok := levels[strings.ToLower(s)]; ok {
		return l, nil
	}
	return lager.FATAL, fmt.Errorf("unknown log level %q", s)
}

func (c Config) ParseAndValidate() (*ValidatedConfig, error) {
	if c.RunDir == "" {
		return nil, errors.New(`missing required config "run_dir"`)
	}
	if !filepath.IsAbs(c.RunDir) {
		return nil, fmt.Errorf(`bad config "run_dir": %q is not absolute`, c.RunDir)
	}
	if c.ProcDir == "" {
		return nil, errors.New(`missing required config "proc_dir"`)
	}
	if !filepath.IsAbs(c.ProcDir) {
		return nil, fmt.Errorf(`bad config "proc_dir": %q is not absolute`, c.ProcDir)
	}

	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf(`bad config "log_level": %s`, err)
	}

	if c.ListenAddress == "" {
		return nil, errors.New(`missing required config "listen_address"`)
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return nil, fmt.Errorf(`bad config "listen_address": %s`, err)
	}

	interval := time.Duration(0)
	if c.SweepInterval != "" {
		interval, err = time.ParseDuration(c.SweepInterval)
		if err != nil {
			return nil, fmt.Errorf(`bad config "sweep_interval": %s`, err)
		}
		if interval < 0 {
			return nil, fmt.Errorf(`bad config "sweep_interval": must not be negative`)
		}
	}

	mount := true
	if c.MountProc != nil {
		mount = *c.MountProc
	}

	return &ValidatedConfig{
		RunDir:        filepath.Clean(c.RunDir),
		ProcDir:       filepath.Clean(c.ProcDir),
		LogLevel:      level,
		ListenAddress: c.ListenAddress,
		MountProc:     mount,
		SweepInterval: interval,
	}, nil
}

// Read returns the configuration in path, or the defaults if path is
// empty.  When required is false, a missing file also yields the defaults.
func Read(path string, required bool) (Config, error) {
	return ReadOver(DefaultConfig(), path, required)
}

// ReadOver is Read with base in place of the defaults.  A file that is not
// required is skipped, and base returned, when it is missing or cannot be
// parsed.
func ReadOver(base Config, path string, required bool) (Config, error) {
	if path == "" {
		return base, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if !required {
			return base, nil
		}
		return Config{}, err
	}
	defer f.Close()

	c, err := UnmarshalOver(base, f)
	if err != nil {
		if !required {
			return base, nil
		}
		return Config{}, fmt.Errorf("parsing config %s: %s", path, err)
	}
	return c, nil
}

// Load finds and reads the configuration file, applies the environment,
// and lets adjust make final changes (typically from command line flags)
// before validating.  An explicitly named file must exist and parse; the
// default one need not.
func Load(path string, getenv func(string) string, adjust func(*Config)) (*ValidatedConfig, error) {
	return LoadOver(DefaultConfig(), path, getenv, adjust)
}

// LoadOver is Load for programs whose defaults differ from DefaultConfig.
func LoadOver(base Config, path string, getenv func(string) string, adjust func(*Config)) (*ValidatedConfig, error) {
	required := true
	if path == "" {
		path = getenv(PathEnv)
	}
	if path == "" {
		path = DefaultPath
		required = false
	}
	c, err := ReadOver(base, path, required)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(getenv)
	if adjust != nil {
		adjust(&c)
	}
	return c.ParseAndValidate()
}

// ParseConfigFile reads and validates a configuration file, without
// consulting the environment.
func ParseConfigFile(path string) (*ValidatedConfig, error) {
	if path == "" {
		return nil, fmt.Errorf("missing config file path")
	}
	c, err := Read(path, true)
	if err != nil {
		return nil, err
	}
	return c.ParseAndValidate()
}
