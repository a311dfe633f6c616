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
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/google/subcommands"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/tegra-ivc/ivc/ivcctl/cmd/util"
	"github.com/tegra-ivc/ivc/ivcctl/config"
	"github.com/tegra-ivc/ivc/pkg/hvivc"
	"github.com/tegra-ivc/ivc/pkg/ivc"
	"github.com/tegra-ivc/ivc/pkg/ivcmem"
	"google.golang.org/protobuf/proto"
)

// Inspect implements subcommands.Command for the "inspect" command.
type Inspect struct {
	format string
	side   string
}

// Name implements subcommands.Command.Name.
func (*Inspect) Name() string {
	return "inspect"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Inspect) Synopsis() string {
	return "print the headers of a queue"
}

// Usage implements subcommands.Command.Usage.
func (*Inspect) Usage() string {
	return `inspect [flags] <queue id> - print both headers of a queue as seen from one side
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (i *Inspect) SetFlags(f *flag.FlagSet) {
	f.StringVar(&i.format, "format", "text", "output format: text, json or prometheus.")
	f.StringVar(&i.side, "side", "", "side to inspect from: a or b. Defaults to the side in the queue table.")
}

// Execute implements subcommands.Command.Execute.
func (i *Inspect) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	q, err := lookupQueue(conf, f.Arg(0))
	if err != nil {
		return util.Errorf("inspect: %v", err)
	}
	if i.side != "" {
		q.Side = i.side
	}
	stats, err := inspectQueue(conf.RootDir, q)
	if err != nil {
		return util.Errorf("inspect queue %d: %v", q.ID, err)
	}
	if err := writeStats(os.Stdout, i.format, []queueStats{{Queue: q, Stats: stats}}); err != nil {
		return util.Errorf("inspect queue %d: %v", q.ID, err)
	}
	return subcommands.ExitSuccess
}

// inspectQueue maps an existing queue region and snapshots it from q.Side.
func inspectQueue(root string, q hvivc.Queue) (ivc.Stats, error) {
	side, err := ivcmem.ParseSide(q.Side)
	if err != nil {
		return ivc.Stats{}, err
	}
	path := q.ResolvePath(root)
	if _, err := os.Stat(path); err != nil {
		return ivc.Stats{}, err
	}
	r, err := ivcmem.OpenFile(path, q.NumFrames, q.FrameSize)
	if err != nil {
		return ivc.Stats{}, err
	}
	defer r.Unmap()
	ch, err := r.Channel(side, nil)
	if err != nil {
		return ivc.Stats{}, err
	}
	return ch.Snapshot(), nil
}

// queueStats is the unit of output of inspect and pingpong.
type queueStats struct {
	Queue hvivc.Queue `json:"queue"`
	Stats ivc.Stats   `json:"stats"`
}

func writeStats(w io.Writer, format string, qs []queueStats) error {
	switch format {
	case "text":
		return writeStatsText(w, qs)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(qs)
	case "prometheus":
		return writeStatsPrometheus(w, qs)
	default:
		return fmt.Errorf("invalid format %q, must be 'text', 'json' or 'prometheus'", format)
	}
}

func writeStatsText(w io.Writer, qs []queueStats) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, q := range qs {
		s := &q.Stats
		fmt.Fprintf(tw, "queue %d (%s) side %s\n", q.Queue.ID, q.Queue.Name, q.Queue.Side)
		fmt.Fprintf(tw, "  geometry\t%d frames x %d bytes\n", s.NumFrames, s.FrameSize)
		fmt.Fprintf(tw, "  tx\tcount=%d\tstate=%v\tpeer_rx=%d\tposition=%d\tfree=%d\n", s.TXCount, s.TXState, s.PeerRXCount, s.TXPosition, s.Free())
		fmt.Fprintf(tw, "  rx\tcount=%d\tpeer_state=%v\tpeer_tx=%d\tposition=%d\tpending=%d\n", s.RXCount, s.PeerState, s.PeerTXCount, s.RXPosition, s.Pending())
		if s.FramesRead+s.FramesWritten+s.OverFull+s.Faults+s.Resets > 0 {
			fmt.Fprintf(tw, "  local\tread=%d\twritten=%d\tover_full=%d\tfaults=%d\tresets=%d\n", s.FramesRead, s.FramesWritten, s.OverFull, s.Faults, s.Resets)
		}
	}
	return tw.Flush()
}

// metric describes one exported value of ivc.Stats.
type metric struct {
	name string
	help string
	typ  dto.MetricType
	get  func(*ivc.Stats) float64
}

var metrics = []metric{
	{"ivc_tx_count", "Frames written to the transmit queue, modulo 2^32.", dto.MetricType_GAUGE, func(s *ivc.Stats) float64 { return float64(s.TXCount) }},
	{"ivc_rx_count", "Frames consumed from the receive queue, modulo 2^32.", dto.MetricType_GAUGE, func(s *ivc.Stats) float64 { return float64(s.RXCount) }},
	{"ivc_peer_tx_count", "Peer's transmit counter.", dto.MetricType_GAUGE, func(s *ivc.Stats) float64 { return float64(s.PeerTXCount) }},
	{"ivc_peer_rx_count", "Peer's receive counter.", dto.MetricType_GAUGE, func(s *ivc.Stats) float64 { return float64(s.PeerRXCount) }},
	{"ivc_pending_frames", "Frames waiting to be read.", dto.MetricType_GAUGE, func(s *ivc.Stats) float64 { return float64(s.Pending()) }},
	{"ivc_free_frames", "Free frames in the transmit queue.", dto.MetricType_GAUGE, func(s *ivc.Stats) float64 { return float64(s.Free()) }},
	{"ivc_state", "Local reset state: 0 established, 1 sync, 2 ack.", dto.MetricType_GAUGE, func(s *ivc.Stats) float64 { return float64(s.TXState) }},
	{"ivc_peer_state", "Peer reset state: 0 established, 1 sync, 2 ack.", dto.MetricType_GAUGE, func(s *ivc.Stats) float64 { return float64(s.PeerState) }},
	{"ivc_frames_read_total", "Frames read by this process.", dto.MetricType_COUNTER, func(s *ivc.Stats) float64 { return float64(s.FramesRead) }},
	{"ivc_frames_written_total", "Frames written by this process.", dto.MetricType_COUNTER, func(s *ivc.Stats) float64 { return float64(s.FramesWritten) }},
	{"ivc_over_full_total", "Times the peer's counters were found over-full.", dto.MetricType_COUNTER, func(s *ivc.Stats) float64 { return float64(s.OverFull) }},
	{"ivc_faults_total", "Copies that faulted.", dto.MetricType_COUNTER, func(s *ivc.Stats) float64 { return float64(s.Faults) }},
	{"ivc_resets_total", "Resets requested by this process.", dto.MetricType_COUNTER, func(s *ivc.Stats) float64 { return float64(s.Resets) }},
}

func writeStatsPrometheus(w io.Writer, qs []queueStats) error {
	for _, m := range metrics {
		mf := &dto.MetricFamily{
			Name: proto.String(m.name),
			Help: proto.String(m.help),
			Type: m.typ.Enum(),
		}
		for _, q := range qs {
			v := m.get(&q.Stats)
			pm := &dto.Metric{
				Label: []*dto.LabelPair{
					{Name: proto.String("queue"), Value: proto.String(strconv.FormatUint(uint64(q.Queue.ID), 10))},
					{Name: proto.String("name"), Value: proto.String(q.Queue.Name)},
					{Name: proto.String("side"), Value: proto.String(q.Queue.Side)},
				},
			}
			if m.typ == dto.MetricType_COUNTER {
				pm.Counter = &dto.Counter{Value: proto.Float64(v)}
			} else {
				pm.Gauge = &dto.Gauge{Value: proto.Float64(v)}
			}
			mf.Metric = append(mf.Metric, pm)
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
