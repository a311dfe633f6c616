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

package ivcmem

import (
	"fmt"

	"github.com/tegra-ivc/ivc/pkg/errors/linuxerr"
	"github.com/tegra-ivc/ivc/pkg/ivc"
	"github.com/tegra-ivc/ivc/pkg/log"
	"github.com/tegra-ivc/ivc/pkg/memutil"
	"golang.org/x/sys/unix"
)

// Side selects which queue of a region an endpoint transmits on.
type Side int

const (
	// SideA transmits on the first queue and receives on the second.
	SideA Side = iota

	// SideB transmits on the second queue and receives on the first.
	SideB
)

// String implements fmt.Stringer.String.
func (s Side) String() string {
	switch s {
	case SideA:
		return "a"
	case SideB:
		return "b"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Peer returns the opposite side.
func (s Side) Peer() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// ParseSide parses "a" or "b".
func ParseSide(s string) (Side, error) {
	switch s {
	case "a", "A", "0":
		return SideA, nil
	case "b", "B", "1":
		return SideB, nil
	default:
		return 0, linuxerr.Wrapf(linuxerr.EINVAL, "invalid side %q", s)
	}
}

// Region is a mapping of a channel region.
type Region struct {
	mem        []byte
	numFrames  uint32
	frameSize  uint32
	fileBacked bool
}

// Map maps the region described by d into this process.
func Map(d RegionDescriptor) (*Region, error) {
	need, err := ivc.ChannelSize(d.NumFrames, d.FrameSize)
	if err != nil {
		return nil, err
	}
	if uint64(d.Length) < need {
		return nil, linuxerr.Wrapf(linuxerr.EINVAL, "region of %d bytes cannot hold %d bytes of queues", d.Length, need)
	}
	mem, err := memutil.MapSlice(0, uintptr(d.Length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED, uintptr(d.FD), uintptr(d.Offset))
	if err != nil {
		return nil, fmt.Errorf("failed to mmap region: %v", err)
	}
	return &Region{
		mem:       mem,
		numFrames: d.NumFrames,
		frameSize: d.FrameSize,
	}, nil
}

// Bytes returns the whole mapping.
func (r *Region) Bytes() []byte {
	return r.mem
}

// Unmap unmaps the region. Channels using it must not be used afterwards.
func (r *Region) Unmap() error {
	if r.mem == nil {
		return nil
	}
	err := memutil.UnmapSlice(r.mem)
	r.mem = nil
	return err
}

// Queues returns the receive and transmit queues for the given side.
func (r *Region) Queues(side Side) (rx, tx []byte) {
	size, _ := ivc.QueueSize(r.numFrames, r.frameSize)
	first := r.mem[:size:size]
	second := r.mem[size : 2*size : 2*size]
	if side == SideA {
		return second, first
	}
	return first, second
}

// Coherency returns the cache maintenance appropriate for the region. Memfd
// regions are coherent between processes on the same host; file-backed
// regions are synced with msync(2) so peers mapping the file through another
// path observe our writes.
func (r *Region) Coherency() ivc.Coherency {
	if !r.fileBacked {
		return nil
	}
	return ivc.MsyncCoherency{OnError: func(op string, err error) {
		log.Warningf("ivcmem: msync %s failed: %v", op, err)
	}}
}

// Channel returns a channel endpoint over the region. The geometry and
// coherency are taken from the region. notifier may be nil.
func (r *Region) Channel(side Side, notifier ivc.Notifier) (*ivc.Channel, error) {
	rx, tx := r.Queues(side)
	return ivc.New(rx, tx, ivc.Config{
		NumFrames: r.numFrames,
		FrameSize: r.frameSize,
		Coherency: r.Coherency(),
		Notifier:  notifier,
	})
}
