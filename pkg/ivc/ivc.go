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

// Package ivc implements the Inter-VM Communication channel protocol: a pair
// of single-producer/single-consumer rings of fixed-size frames living in
// memory shared with a peer that may be another VM, the hypervisor, or
// another process.
//
// Each direction is a queue made of a header followed by an array of frames.
// The header is split into two cache lines. The first is written only by the
// transmitting endpoint and holds its frame counter and reset state; the
// second is written only by the receiving endpoint and holds its counter.
// Counters increase monotonically modulo 2^32 and the difference between
// them is the number of frames in flight.
//
// A Channel sees its own transmit queue and the peer's transmit queue, which
// it reads from. The protocol has no locks: each party is the sole writer of
// its own words, and the only cross-side synchronization is ordered atomic
// access to those words together with an optional Coherency hook for memory
// that is not cache coherent between the two sides.
//
// Channel methods are non-blocking. Callers wanting to wait use a Notifier
// and retry on ENOSPC. A Channel supports one reading goroutine and one
// writing goroutine concurrently; Sync, Reset and Notified require exclusive
// access.
package ivc

import (
	"fmt"
	"math"
	"time"

	"github.com/tegra-ivc/ivc/pkg/atomicbitops"
	"github.com/tegra-ivc/ivc/pkg/errors/linuxerr"
	"github.com/tegra-ivc/ivc/pkg/hostarch"
	"github.com/tegra-ivc/ivc/pkg/log"
)

const (
	// Align is the alignment of queue headers, frames, and regions. Each
	// half of a header occupies exactly one Align-sized block.
	Align = hostarch.CacheLineSize

	// HeaderSize is the size of a queue header.
	HeaderSize = 2 * Align
)

// State is the reset state an endpoint advertises in its transmit header.
type State uint32

const (
	// Established is zero so that zero-filled memory is a valid, connected
	// channel for peers that never reset.
	Established State = iota

	// Sync means the endpoint has requested a reset. A peer that observes
	// it may clear the counters it owns at any time.
	Sync

	// Ack means the endpoint has observed Sync and cleared its counters.
	Ack
)

// String implements fmt.Stringer.String.
func (s State) String() string {
	switch s {
	case Established:
		return "established"
	case Sync:
		return "sync"
	case Ack:
		return "ack"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// MarshalText implements encoding.TextMarshaler.MarshalText.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Notifier rings the peer's doorbell.
type Notifier interface {
	Notify() error
}

// Config describes the geometry and collaborators of a Channel.
type Config struct {
	// NumFrames is the number of frames in each queue.
	NumFrames uint32

	// FrameSize is the size of each frame in bytes. It must be a multiple
	// of Align.
	FrameSize uint32

	// Coherency is used to invalidate and flush shared memory. If nil, the
	// memory is assumed to be coherent and no maintenance is performed.
	Coherency Coherency

	// Notifier is rung after state transitions and after advances that
	// make the queue interesting to the peer. If nil, the peer is expected
	// to poll.
	Notifier Notifier
}

// QueueSize returns the number of bytes needed by one queue of the given
// geometry.
func QueueSize(numFrames, frameSize uint32) (uint64, error) {
	if err := checkGeometry(numFrames, frameSize); err != nil {
		return 0, err
	}
	size := HeaderSize + uint64(numFrames)*uint64(frameSize)
	if size > math.MaxInt {
		return 0, linuxerr.Wrapf(linuxerr.EINVAL, "queue of %d frames of %d bytes is too large", numFrames, frameSize)
	}
	return size, nil
}

// ChannelSize returns the number of bytes needed by both queues of a channel.
func ChannelSize(numFrames, frameSize uint32) (uint64, error) {
	size, err := QueueSize(numFrames, frameSize)
	if err != nil {
		return 0, err
	}
	if size > math.MaxInt/2 {
		return 0, linuxerr.Wrapf(linuxerr.EINVAL, "channel of %d frames of %d bytes is too large", numFrames, frameSize)
	}
	return 2 * size, nil
}

func checkGeometry(numFrames, frameSize uint32) error {
	switch {
	case numFrames == 0:
		return linuxerr.Wrapf(linuxerr.EINVAL, "queue has no frames")
	case frameSize == 0:
		return linuxerr.Wrapf(linuxerr.EINVAL, "frame size is zero")
	case frameSize%Align != 0:
		return linuxerr.Wrapf(linuxerr.EINVAL, "frame size %d is not a multiple of %d", frameSize, Align)
	}
	return nil
}

// queue is one direction of a channel as seen from this endpoint.
type queue struct {
	hdr    *header
	frames []byte

	// position is the index of the next frame to transfer. It is owned by
	// the goroutine using this direction, except during Sync and Notified.
	position uint32
}

// frame returns the frame at index i.
func (q *queue) frame(i, frameSize uint32) []byte {
	off := uint64(i) * uint64(frameSize)
	return q.frames[off : off+uint64(frameSize) : off+uint64(frameSize)]
}

// Channel is one endpoint of an IVC channel.
type Channel struct {
	rx queue
	tx queue

	numFrames uint32
	frameSize uint32

	coherency Coherency
	notifier  Notifier

	// Words of the transmit header. We write the counter and state; the
	// peer writes its receive counter.
	txCount ownedWord
	txState ownedWord
	peerRX  peerWord

	// Words of the receive header. We write the counter; the peer writes
	// its transmit counter and state.
	rxCount   ownedWord
	peerTX    peerWord
	peerState peerWord

	// Process-local statistics.
	framesRead    atomicbitops.Uint64
	framesWritten atomicbitops.Uint64
	overFull      atomicbitops.Uint64
	faults        atomicbitops.Uint64
	resets        atomicbitops.Uint64

	warn log.Logger
}

// New returns a Channel over the given queues. rx is the queue the peer
// transmits on and tx is the queue this endpoint transmits on; the peer
// constructs its Channel with the two swapped. Both slices must start at an
// Align boundary and hold at least QueueSize(cfg.NumFrames, cfg.FrameSize)
// bytes, and they must not overlap.
//
// The queues are used as they are found: zero-filled memory yields an
// established, empty channel.
func New(rx, tx []byte, cfg Config) (*Channel, error) {
	size, err := QueueSize(cfg.NumFrames, cfg.FrameSize)
	if err != nil {
		return nil, err
	}
	if err := checkRegion("rx", rx, size); err != nil {
		return nil, err
	}
	if err := checkRegion("tx", tx, size); err != nil {
		return nil, err
	}
	if overlaps(rx[:size], tx[:size]) {
		return nil, linuxerr.Wrapf(linuxerr.EINVAL, "rx and tx queues overlap")
	}

	c := &Channel{
		rx:        newQueue(rx[:size]),
		tx:        newQueue(tx[:size]),
		numFrames: cfg.NumFrames,
		frameSize: cfg.FrameSize,
		coherency: cfg.Coherency,
		notifier:  cfg.Notifier,
		warn:      log.BasicRateLimitedLogger(time.Second),
	}
	c.txCount = ownedWord{word: &c.tx.hdr.tx.count, line: c.tx.hdr.txLine(), coherency: c.coherency}
	c.txState = ownedWord{word: &c.tx.hdr.tx.state, line: c.tx.hdr.txLine(), coherency: c.coherency}
	c.peerRX = peerWord{word: &c.tx.hdr.rx.count, line: c.tx.hdr.rxLine(), coherency: c.coherency}
	c.rxCount = ownedWord{word: &c.rx.hdr.rx.count, line: c.rx.hdr.rxLine(), coherency: c.coherency}
	c.peerTX = peerWord{word: &c.rx.hdr.tx.count, line: c.rx.hdr.txLine(), coherency: c.coherency}
	c.peerState = peerWord{word: &c.rx.hdr.tx.state, line: c.rx.hdr.txLine(), coherency: c.coherency}

	// Pick up wherever the counters are, so that a channel which is
	// reattached mid-stream continues at the right frames.
	c.Sync()
	log.Debugf("ivc: new channel: %d frames of %d bytes, state %v, peer state %v", c.numFrames, c.frameSize, c.State(), c.PeerState())
	return c, nil
}

func newQueue(mem []byte) queue {
	return queue{
		hdr:    overlayHeader(mem),
		frames: mem[HeaderSize:],
	}
}

func checkRegion(name string, mem []byte, size uint64) error {
	if uint64(len(mem)) < size {
		return linuxerr.Wrapf(linuxerr.EINVAL, "%s queue is %d bytes, need %d", name, len(mem), size)
	}
	if !addrOf(mem).IsCacheLineAligned() {
		return linuxerr.Wrapf(linuxerr.EINVAL, "%s queue at %v is not %d-byte aligned", name, addrOf(mem), Align)
	}
	return nil
}

// NumFrames returns the number of frames in each queue.
func (c *Channel) NumFrames() uint32 {
	return c.numFrames
}

// FrameSize returns the size of each frame in bytes.
func (c *Channel) FrameSize() uint32 {
	return c.frameSize
}

// State returns the reset state this endpoint advertises.
func (c *Channel) State() State {
	return State(c.txState.Load())
}

// PeerState returns the reset state last advertised by the peer, refreshing
// the local view of it first.
func (c *Channel) PeerState() State {
	return State(c.peerState.Refresh())
}

func (c *Channel) notify() {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(); err != nil {
		c.warn.Warningf("ivc: failed to notify peer: %v", err)
	}
}
