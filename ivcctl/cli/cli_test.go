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

package cli

import (
	"testing"
	"time"

	"github.com/google/subcommands"
)

func TestDebugLogName(t *testing.T) {
	d := debugLogName{command: "recv", start: time.Date(2026, 3, 4, 5, 6, 7, 8000, time.UTC)}
	for _, tc := range []struct {
		pattern string
		want    string
	}{
		{pattern: "/tmp/ivc.log", want: "/tmp/ivc.log"},
		{pattern: "/tmp/%COMMAND%.log", want: "/tmp/recv.log"},
		{pattern: "/var/log/ivc/", want: "/var/log/ivc/ivcctl.log.20260304-050607.000008.recv"},
	} {
		if got := d.Build(tc.pattern); got != tc.want {
			t.Errorf("Build(%q) = %q, want %q", tc.pattern, got, tc.want)
		}
	}
}

func TestCommandNames(t *testing.T) {
	seen := map[string]bool{}
	forEachCmd(func(cmd subcommands.Command, _ string) {
		if seen[cmd.Name()] {
			t.Errorf("command %q registered twice", cmd.Name())
		}
		seen[cmd.Name()] = true
	})
	for _, name := range []string{"help", "flags", "create", "inspect", "send", "recv", "layout", "pingpong"} {
		if !seen[name] {
			t.Errorf("command %q is not registered", name)
		}
	}
}
