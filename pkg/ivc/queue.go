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

package ivc

import (
	"github.com/tegra-ivc/ivc/pkg/errors/linuxerr"
	"github.com/tegra-ivc/ivc/pkg/log"
)

// Empty returns true if a queue with the given counters has no frames to
// read.
//
// A difference larger than numFrames can only come from a corrupt or hostile
// peer. Receivers don't check for over-full queues, so such a queue is
// reported empty: the peer appears to have gone silent rather than to have
// an unbounded number of frames ready.
func Empty(tx, rx, numFrames uint32) bool {
	if tx-rx > numFrames {
		return true
	}
	return tx == rx
}

// Full returns true if a queue with the given counters has no room for
// another frame. Over-full queues also appear full, so a writer never
// overwrites frames that may still be live.
func Full(tx, rx, numFrames uint32) bool {
	return tx-rx >= numFrames
}

// OverFull returns true if the counters claim more frames in flight than the
// queue can hold.
func OverFull(tx, rx, numFrames uint32) bool {
	return tx-rx > numFrames
}

// rxEmpty evaluates Empty on the receive queue using peerTX as the peer's
// counter. Each counter is loaded exactly once.
func (c *Channel) rxEmpty(peerTX uint32) bool {
	return Empty(peerTX, c.rxCount.Load(), c.numFrames)
}

// refreshRXEmpty is rxEmpty on a refreshed view of the peer's counter. It
// also records over-full observations.
func (c *Channel) refreshRXEmpty() bool {
	tx := c.peerTX.Refresh()
	rx := c.rxCount.Load()
	if OverFull(tx, rx, c.numFrames) {
		c.overFull.Add(1)
		c.warn.Debugf("ivc: peer claims %d frames in flight on a %d frame queue", tx-rx, c.numFrames)
	}
	return Empty(tx, rx, c.numFrames)
}

// txFull evaluates Full on the transmit queue using peerRX as the peer's
// counter.
func (c *Channel) txFull(peerRX uint32) bool {
	return Full(c.txCount.Load(), peerRX, c.numFrames)
}

// RXEmpty returns true if there is nothing to read, refreshing the peer's
// counter first.
func (c *Channel) RXEmpty() bool {
	return c.refreshRXEmpty()
}

// TXFull returns true if there is no room to write, refreshing the peer's
// counter first.
func (c *Channel) TXFull() bool {
	return c.txFull(c.peerRX.Refresh())
}

// CheckRead returns nil if a frame can be read. It returns ECONNRESET if
// this endpoint is not established and ENOSPC if there is no frame.
//
// The local view of the peer's counter is only refreshed when it shows the
// queue as empty, which avoids invalidations on repeated reads.
func (c *Channel) CheckRead() error {
	// Our state is written only by us. The peer cannot reset its counters
	// until we acknowledge its sync request, so no synchronization with
	// the peer is needed here.
	if State(c.txState.Load()) != Established {
		return linuxerr.ECONNRESET
	}
	if !c.rxEmpty(c.peerTX.Snapshot()) {
		return nil
	}
	if c.refreshRXEmpty() {
		return linuxerr.ENOSPC
	}
	return nil
}

// CheckWrite returns nil if a frame can be written. It returns ECONNRESET if
// this endpoint is not established and ENOSPC if the queue is full.
func (c *Channel) CheckWrite() error {
	if State(c.txState.Load()) != Established {
		return linuxerr.ECONNRESET
	}
	if !c.txFull(c.peerRX.Snapshot()) {
		return nil
	}
	if c.txFull(c.peerRX.Refresh()) {
		return linuxerr.ENOSPC
	}
	return nil
}

// CanRead returns true if a frame can be read.
func (c *Channel) CanRead() bool {
	return c.CheckRead() == nil
}

// CanWrite returns true if a frame can be written.
func (c *Channel) CanWrite() bool {
	return c.CheckWrite() == nil
}

// NextReadFrame returns the frame at the read position. The frame stays in
// the queue until ReadAdvance.
func (c *Channel) NextReadFrame() ([]byte, error) {
	if err := c.CheckRead(); err != nil {
		return nil, err
	}
	frame := c.rx.frame(c.rx.position, c.frameSize)
	if c.coherency != nil {
		c.coherency.Invalidate(frame)
	}
	return frame, nil
}

// NextWriteFrame returns the frame at the write position. Its contents are
// published to the peer by WriteAdvance.
func (c *Channel) NextWriteFrame() ([]byte, error) {
	if err := c.CheckWrite(); err != nil {
		return nil, err
	}
	return c.tx.frame(c.tx.position, c.frameSize), nil
}

// ReadAdvance releases the frame at the read position back to the peer.
func (c *Channel) ReadAdvance() error {
	if err := c.CheckRead(); err != nil {
		return err
	}

	c.rxCount.Publish(c.rxCount.Load() + 1)
	c.rx.position = c.advance(c.rx.position)
	c.framesRead.Add(1)

	// If the queue was full before our release, the peer may be waiting
	// for room.
	if c.peerTX.Refresh()-c.rxCount.Load() == c.numFrames-1 {
		c.notify()
	}
	return nil
}

// WriteAdvance publishes the frame at the write position to the peer.
func (c *Channel) WriteAdvance() error {
	if err := c.CheckWrite(); err != nil {
		return err
	}

	if c.coherency != nil {
		c.coherency.Flush(c.tx.frame(c.tx.position, c.frameSize))
	}
	c.txCount.Publish(c.txCount.Load() + 1)
	c.tx.position = c.advance(c.tx.position)
	c.framesWritten.Add(1)

	// If the queue was empty before our write, the peer may be waiting
	// for data.
	if c.txCount.Load()-c.peerRX.Refresh() == 1 {
		c.notify()
	}
	return nil
}

func (c *Channel) advance(position uint32) uint32 {
	if position == c.numFrames-1 {
		return 0
	}
	return position + 1
}

// FramesAvailable returns the number of free frames in the transmit queue.
// The result is not clamped: if the peer's counter is corrupt the value is
// meaningless, and callers must still use CheckWrite before writing.
func (c *Channel) FramesAvailable() uint32 {
	return c.numFrames - (c.txCount.Load() - c.peerRX.Refresh())
}

// Pending returns the number of frames waiting in the receive queue, or zero
// if the peer's counter is over-full.
func (c *Channel) Pending() uint32 {
	tx := c.peerTX.Refresh()
	rx := c.rxCount.Load()
	if OverFull(tx, rx, c.numFrames) {
		return 0
	}
	return tx - rx
}

// Sync recomputes the read and write positions from the counters. It is
// used after the counters were reset or rebased outside of this Channel.
func (c *Channel) Sync() error {
	if c == nil || c.numFrames == 0 {
		return linuxerr.EINVAL
	}
	c.tx.position = c.txCount.Load() % c.numFrames
	c.rx.position = c.rxCount.Load() % c.numFrames
	if log.IsLogging(log.Debug) {
		log.Debugf("ivc: sync: tx position %d, rx position %d", c.tx.position, c.rx.position)
	}
	return nil
}
