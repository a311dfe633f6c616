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
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/tegra-ivc/ivc/ivcctl/cmd/util"
	"github.com/tegra-ivc/ivc/pkg/ivc"
	"github.com/tegra-ivc/ivc/pkg/ivcmem"
)

// Layout implements subcommands.Command for the "layout" command.
type Layout struct {
	frameSize uint
	numFrames uint
}

// Name implements subcommands.Command.Name.
func (*Layout) Name() string {
	return "layout"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Layout) Synopsis() string {
	return "print the shared memory layout of a channel"
}

// Usage implements subcommands.Command.Usage.
func (*Layout) Usage() string {
	return `layout -frame-size=<bytes> -num-frames=<frames> - print header, queue and file sizes of a channel
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Layout) SetFlags(f *flag.FlagSet) {
	f.UintVar(&l.frameSize, "frame-size", 64, "frame size in bytes, a multiple of 64.")
	f.UintVar(&l.numFrames, "num-frames", 16, "number of frames in each direction.")
}

// Execute implements subcommands.Command.Execute.
func (l *Layout) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := writeLayout(os.Stdout, uint32(l.numFrames), uint32(l.frameSize)); err != nil {
		return util.Errorf("layout: %v", err)
	}
	return subcommands.ExitSuccess
}

func writeLayout(w io.Writer, numFrames, frameSize uint32) error {
	queue, err := ivc.QueueSize(numFrames, frameSize)
	if err != nil {
		return err
	}
	channel, err := ivc.ChannelSize(numFrames, frameSize)
	if err != nil {
		return err
	}
	file, err := ivcmem.FileSize(numFrames, frameSize)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "frames\t%d x %d bytes\n", numFrames, frameSize)
	fmt.Fprintf(tw, "header size\t%d\n", ivc.HeaderSize)
	fmt.Fprintf(tw, "queue size\t%d\n", queue)
	fmt.Fprintf(tw, "channel size\t%d\n", channel)
	fmt.Fprintf(tw, "file size\t%d\n", file)
	return tw.Flush()
}
