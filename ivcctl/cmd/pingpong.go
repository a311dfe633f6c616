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
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/tegra-ivc/ivc/ivcctl/cmd/util"
	"github.com/tegra-ivc/ivc/ivcctl/config"
	"github.com/tegra-ivc/ivc/pkg/cleanup"
	"github.com/tegra-ivc/ivc/pkg/eventfd"
	"github.com/tegra-ivc/ivc/pkg/hvivc"
	"github.com/tegra-ivc/ivc/pkg/ivcmem"
	"github.com/tegra-ivc/ivc/pkg/log"
	"golang.org/x/sync/errgroup"
)

// PingPong implements subcommands.Command for the "pingpong" command.
type PingPong struct {
	count     int
	frameSize uint
	numFrames uint
	format    string
}

// Name implements subcommands.Command.Name.
func (*PingPong) Name() string {
	return "pingpong"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*PingPong) Synopsis() string {
	return "measure round trips over an in-process channel"
}

// Usage implements subcommands.Command.Usage.
func (*PingPong) Usage() string {
	return `pingpong [flags] - bounce frames between two endpoints of a memfd channel with eventfd doorbells
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (p *PingPong) SetFlags(f *flag.FlagSet) {
	f.IntVar(&p.count, "count", 10000, "number of round trips.")
	f.UintVar(&p.frameSize, "frame-size", 64, "frame size in bytes, a multiple of 64.")
	f.UintVar(&p.numFrames, "num-frames", 16, "number of frames in each direction.")
	f.StringVar(&p.format, "format", "", "also print channel stats: text, json or prometheus.")
}

// Execute implements subcommands.Command.Execute.
func (p *PingPong) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || p.count <= 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	ctx, cancel := conf.Context(ctx)
	defer cancel()
	res, err := pingPong(ctx, p.count, uint32(p.numFrames), uint32(p.frameSize), conf.Options())
	if err != nil {
		return util.Errorf("pingpong: %v", err)
	}
	util.Infof("%d round trips in %v, %v per round trip", res.rounds, res.elapsed, res.elapsed/time.Duration(res.rounds))
	if p.format != "" {
		if err := writeStats(os.Stdout, p.format, res.stats); err != nil {
			return util.Errorf("pingpong: %v", err)
		}
	}
	return subcommands.ExitSuccess
}

type pingPongResult struct {
	rounds  int
	elapsed time.Duration
	stats   []queueStats
}

// pingPong connects two cookies over a fresh memfd channel and bounces
// sequence-numbered frames between them.
func pingPong(ctx context.Context, count int, numFrames, frameSize uint32, opts hvivc.Options) (pingPongResult, error) {
	if frameSize < 8 {
		return pingPongResult{}, fmt.Errorf("frame size %d cannot hold a sequence number", frameSize)
	}
	var cu cleanup.Cleanup
	defer cu.Clean()

	alloc, err := ivcmem.NewAllocator()
	if err != nil {
		return pingPongResult{}, err
	}
	cu.Add(alloc.Destroy)
	d, err := alloc.Allocate(numFrames, frameSize)
	if err != nil {
		return pingPongResult{}, err
	}
	r, err := ivcmem.Map(d)
	if err != nil {
		return pingPongResult{}, err
	}
	cu.Add(func() { r.Unmap() })

	var doorbells [2]eventfd.Eventfd
	for i := range doorbells {
		if doorbells[i], err = eventfd.Create(); err != nil {
			return pingPongResult{}, err
		}
		cu.Add(func() { doorbells[i].Close() })
	}
	var cookies [2]*hvivc.Cookie
	for i, side := range []ivcmem.Side{ivcmem.SideA, ivcmem.SideB} {
		// Each side rings the other's doorbell and waits on its own.
		ch, err := r.Channel(side, doorbells[1-i])
		if err != nil {
			return pingPongResult{}, err
		}
		cookies[i] = hvivc.NewCookie(0, ch, doorbells[i], opts)
	}
	ping, pong := cookies[0], cookies[1]

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ping.WaitEstablished(gctx) })
	g.Go(func() error { return pong.WaitEstablished(gctx) })
	if err := g.Wait(); err != nil {
		return pingPongResult{}, fmt.Errorf("establishing channel: %w", err)
	}

	start := time.Now()
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		frame := make([]byte, frameSize)
		for i := 0; i < count; i++ {
			if _, err := pong.Recv(gctx, frame); err != nil {
				return fmt.Errorf("pong: %w", err)
			}
			if _, err := pong.Send(gctx, frame); err != nil {
				return fmt.Errorf("pong: %w", err)
			}
		}
		return nil
	})
	g.Go(func() error {
		req := make([]byte, frameSize)
		resp := make([]byte, frameSize)
		for i := 0; i < count; i++ {
			binary.LittleEndian.PutUint64(req, uint64(i))
			if _, err := ping.Transfer(gctx, req, resp); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			if got := binary.LittleEndian.Uint64(resp); got != uint64(i) {
				return fmt.Errorf("ping: round %d echoed sequence number %d", i, got)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return pingPongResult{}, err
	}
	elapsed := time.Since(start)
	log.Debugf("pingpong: %d rounds of %d byte frames in %v", count, frameSize, elapsed)

	return pingPongResult{
		rounds:  count,
		elapsed: elapsed,
		stats:   []queueStats{
			{Queue: hvivc.Queue{Name: "ping", FrameSize: frameSize, NumFrames: numFrames, Side: ivcmem.SideA.String()}, Stats: ping.Stats()},
			{Queue: hvivc.Queue{Name: "pong", FrameSize: frameSize, NumFrames: numFrames, Side: ivcmem.SideB.String()}, Stats: pong.Stats()},
		},
	}, nil
}
