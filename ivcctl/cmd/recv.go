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
	"bytes"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/tegra-ivc/ivc/ivcctl/cmd/util"
	"github.com/tegra-ivc/ivc/ivcctl/config"
)

// Recv implements subcommands.Command for the "recv" command.
type Recv struct {
	count int
	reset bool
	hex   bool
	side  string
}

// Name implements subcommands.Command.Name.
func (*Recv) Name() string {
	return "recv"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Recv) Synopsis() string {
	return "read frames from a queue"
}

// Usage implements subcommands.Command.Usage.
func (*Recv) Usage() string {
	return `recv [flags] <queue id> - read frames and print one per line, waiting for them to arrive
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Recv) SetFlags(f *flag.FlagSet) {
	f.IntVar(&r.count, "count", 1, "number of frames to read, 0 reads until interrupted.")
	f.BoolVar(&r.reset, "reset", false, "reset the channel and wait for the peer before reading.")
	f.BoolVar(&r.hex, "hex", false, "dump whole frames in hex instead of printing them as text.")
	f.StringVar(&r.side, "side", "", "side to read from: a or b. Defaults to the side in the queue table.")
}

// Execute implements subcommands.Command.Execute.
func (r *Recv) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 || r.count < 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	id, err := parseID(f.Arg(0))
	if err != nil {
		return util.Errorf("recv: %v", err)
	}

	pool, err := openPool(conf, id, r.side)
	if err != nil {
		return util.Errorf("recv: %v", err)
	}
	defer pool.Close()
	c, err := pool.Reserve(id)
	if err != nil {
		return util.Errorf("recv: %v", err)
	}

	ctx, cancel := conf.Context(ctx)
	defer cancel()
	if r.reset {
		if err := c.WaitEstablished(ctx); err != nil {
			return util.Errorf("recv: queue %d: %v", id, err)
		}
	}
	frame := make([]byte, c.FrameSize())
	for i := 0; r.count == 0 || i < r.count; i++ {
		n, err := c.Recv(ctx, frame)
		if err != nil {
			return util.Errorf("recv: queue %d: %v", id, err)
		}
		if err := printFrame(os.Stdout, frame[:n], r.hex); err != nil {
			return util.Errorf("recv: %v", err)
		}
	}
	return subcommands.ExitSuccess
}

// printFrame prints a frame. Frames are fixed size, so text output stops at
// the first NUL.
func printFrame(w io.Writer, frame []byte, dump bool) error {
	if dump {
		_, err := io.WriteString(w, hex.Dump(frame))
		return err
	}
	if i := bytes.IndexByte(frame, 0); i >= 0 {
		frame = frame[:i]
	}
	_, err := fmt.Fprintf(w, "%s\n", frame)
	return err
}
