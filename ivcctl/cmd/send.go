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

package cmd

import (
	"context"
	"flag"

	"github.com/google/subcommands"
	"github.com/tegra-ivc/ivc/ivcctl/cmd/util"
	"github.com/tegra-ivc/ivc/ivcctl/config"
	"github.com/tegra-ivc/ivc/pkg/log"
)

// Send implements subcommands.Command for the "send" command.
type Send struct {
	reset bool
	side  string
}

// Name implements subcommands.Command.Name.
func (*Send) Name() string {
	return "send"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Send) Synopsis() string {
	return "write messages to a queue, one frame each"
}

// Usage implements subcommands.Command.Usage.
func (*Send) Usage() string {
	return `send [flags] <queue id> <message>... - write each message as one frame, waiting for room
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Send) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&s.reset, "reset", false, "reset the channel and wait for the peer before sending.")
	f.StringVar(&s.side, "side", "", "side to send from: a or b. Defaults to the side in the queue table.")
}

// Execute implements subcommands.Command.Execute.
func (s *Send) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() < 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	id, err := parseID(f.Arg(0))
	if err != nil {
		return util.Errorf("send: %v", err)
	}

	pool, err := openPool(conf, id, s.side)
	if err != nil {
		return util.Errorf("send: %v", err)
	}
	defer pool.Close()
	c, err := pool.Reserve(id)
	if err != nil {
		return util.Errorf("send: %v", err)
	}

	ctx, cancel := conf.Context(ctx)
	defer cancel()
	if s.reset {
		if err := c.WaitEstablished(ctx); err != nil {
			return util.Errorf("send: queue %d: %v", id, err)
		}
	}
	// Frames are sent whole so the reader never sees a previous message's
	// tail.
	frame := make([]byte, c.FrameSize())
	for _, msg := range f.Args()[1:] {
		if len(msg) > len(frame) {
			return util.Errorf("send: %d byte message does not fit in a %d byte frame", len(msg), len(frame))
		}
		clear(frame[copy(frame, msg):])
		if _, err := c.Send(ctx, frame); err != nil {
			return util.Errorf("send: queue %d: %v", id, err)
		}
		log.Debugf("send: queue %d: wrote %d bytes", id, len(msg))
	}
	return subcommands.ExitSuccess
}
