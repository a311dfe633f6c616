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

// Package util groups helpers shared by ivcctl commands.
package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/tegra-ivc/ivc/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages are
// consumed by the caller of ivcctl, in addition to stderr.
var ErrorLogger io.Writer

// Infof writes message to log and stdout.
func Infof(format string, args ...any) {
	log.Infof(format, args...)
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

// Errorf logs error to containerd log (--log), to stderr, and debug logs. It
// returns subcommands.ExitFailure for convenience with subcommand.Execute()
// methods:
//
//	return Errorf("Danger! Danger!")
func Errorf(format string, args ...any) subcommands.ExitStatus {
	// If ErrorLogger is set, ensure the message is written in JSON, so it
	// can be parsed by log collectors.
	if ErrorLogger != nil {
		writeError(ErrorLogger, fmt.Sprintf(format, args...))
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	log.Warningf(format, args...)
	return subcommands.ExitFailure
}

// Fatalf logs the same way as Errorf() does, plus *exits* the process.
func Fatalf(format string, args ...any) {
	Errorf(format, args...)
	// Return an error that is unlikely to be used by the application.
	os.Exit(128)
}

type jsonError struct {
	Msg   string    `json:"msg"`
	Level string    `json:"level"`
	Time  time.Time `json:"time"`
}

func writeError(w io.Writer, msg string) {
	data, err := json.Marshal(jsonError{
		Msg:   msg,
		Level: "error",
		Time:  time.Now(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshalling message %q: %v\n", msg, err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "error writing message %q to %v: %v\n", msg, w, err)
	}
}
