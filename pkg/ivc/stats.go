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

// Stats is a point-in-time view of a Channel. Header words are loaded
// atomically but not all at the same instant.
type Stats struct {
	NumFrames uint32 `json:"num_frames"`
	FrameSize uint32 `json:"frame_size"`

	// Transmit queue.
	TXCount     uint32 `json:"tx_count"`
	TXState     State  `json:"tx_state"`
	PeerRXCount uint32 `json:"peer_rx_count"`
	TXPosition  uint32 `json:"tx_position"`

	// Receive queue.
	RXCount     uint32 `json:"rx_count"`
	PeerTXCount uint32 `json:"peer_tx_count"`
	PeerState   State  `json:"peer_state"`
	RXPosition  uint32 `json:"rx_position"`

	FramesRead    uint64 `json:"frames_read"`
	FramesWritten uint64 `json:"frames_written"`
	OverFull      uint64 `json:"over_full"`
	Faults        uint64 `json:"faults"`
	Resets        uint64 `json:"resets"`
}

// Pending returns the number of frames waiting to be read, or zero if the
// peer's counter is over-full.
func (s *Stats) Pending() uint32 {
	if OverFull(s.PeerTXCount, s.RXCount, s.NumFrames) {
		return 0
	}
	return s.PeerTXCount - s.RXCount
}

// Free returns the number of free frames in the transmit queue.
func (s *Stats) Free() uint32 {
	return s.NumFrames - (s.TXCount - s.PeerRXCount)
}

// Snapshot returns the current Stats. Peer words are refreshed first.
//
// Positions are owned by the reading and writing goroutines, so Snapshot
// must not race with Read, Write or their advances.
func (c *Channel) Snapshot() Stats {
	return Stats{
		NumFrames:     c.numFrames,
		FrameSize:     c.frameSize,
		TXCount:       c.txCount.Load(),
		TXState:       State(c.txState.Load()),
		PeerRXCount:   c.peerRX.Refresh(),
		TXPosition:    c.tx.position,
		RXCount:       c.rxCount.Load(),
		PeerTXCount:   c.peerTX.Refresh(),
		PeerState:     State(c.peerState.Refresh()),
		RXPosition:    c.rx.position,
		FramesRead:    c.framesRead.Load(),
		FramesWritten: c.framesWritten.Load(),
		OverFull:      c.overFull.Load(),
		Faults:        c.faults.Load(),
		Resets:        c.resets.Load(),
	}
}
