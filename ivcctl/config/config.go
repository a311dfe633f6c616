// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides basic infrastructure to set configuration settings
// for ivcctl. Each setting that can be changed from the command line has a
// `flag:"..."` tag naming the flag that populates it.
package config

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/tegra-ivc/ivc/pkg/hvivc"
	"github.com/tegra-ivc/ivc/pkg/log"
)

// DefaultRoot is where file-backed queues live when --root is not set.
const DefaultRoot = "/dev/shm/ivc"

// Config holds configuration that is not part of the queue table.
type Config struct {
	// RootDir is the directory holding file-backed queue regions.
	RootDir string `flag:"root"`

	// Channels is the path of the queue table (TOML or YAML).
	Channels string `flag:"channels"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// DebugLog is the path to log debug information to, if not empty.
	// %COMMAND% and %TIMESTAMP% are expanded.
	DebugLog string `flag:"debug-log"`

	// DebugLogFormat is the log format for debug.
	DebugLogFormat string `flag:"debug-log-format"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr"`

	// PollInterval bounds each doorbell wait and paces polling when there
	// is no doorbell.
	PollInterval time.Duration `flag:"poll-interval"`

	// ResetRetries is the number of handshake attempts before giving up on
	// a peer.
	ResetRetries int `flag:"reset-retries"`

	// Timeout bounds blocking commands. Zero means no limit.
	Timeout time.Duration `flag:"timeout"`
}

func (c *Config) validate() error {
	for _, f := range []struct{ name, value string }{
		{"log-format", c.LogFormat},
		{"debug-log-format", c.DebugLogFormat},
	} {
		switch f.value {
		case "text", "json":
		default:
			return fmt.Errorf("invalid --%s %q, must be 'text' or 'json'", f.name, f.value)
		}
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("--poll-interval must be positive, got %v", c.PollInterval)
	}
	if c.ResetRetries <= 0 {
		return fmt.Errorf("--reset-retries must be positive, got %d", c.ResetRetries)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("--timeout must not be negative, got %v", c.Timeout)
	}
	return nil
}

// Options returns the blocking-call options for queues opened under c.
func (c *Config) Options() hvivc.Options {
	return hvivc.Options{
		ResetRetries: c.ResetRetries,
		PollInterval: c.PollInterval,
	}
}

// Table loads the queue table named by --channels.
func (c *Config) Table() (*hvivc.Table, error) {
	if c.Channels == "" {
		return nil, fmt.Errorf("--channels must name a queue table")
	}
	return hvivc.LoadTable(c.Channels)
}

// Context returns a context bounded by --timeout.
func (c *Config) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			continue
		}
		log.Infof("\t%s: %s", name, getVal(obj.Field(i)))
	}
}
