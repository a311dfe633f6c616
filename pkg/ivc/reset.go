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

// Reset starts the reset handshake: this endpoint moves to Sync and rings
// the peer. Reads and writes fail with ECONNRESET until Notified reports
// that the channel is established again.
func (c *Channel) Reset() {
	c.txState.Publish(uint32(Sync))
	c.resets.Add(1)
	log.Debugf("ivc: reset requested")
	c.notify()
}

// Notified advances the reset handshake after the peer rang our doorbell. It
// returns nil if the channel is established and EAGAIN if the handshake is
// still in progress.
//
// The transitions are:
//
//	local     peer       action
//	any       Sync       clear our counters, move to Ack
//	Sync      Ack        clear our counters, move to Established
//	Ack       not Sync   move to Established
//
// Every transition rings the peer. In all other cases either the channel is
// already established or we are waiting for the peer to catch up.
func (c *Channel) Notified() error {
	peer := State(c.peerState.Refresh())
	local := State(c.txState.Load())

	switch {
	case peer == Sync:
		// The peer won't make progress until we change state, so its view
		// of our counters is not in use.
		c.clearCounters()
		c.transition(local, Ack)
	case local == Sync && peer == Ack:
		c.clearCounters()
		c.transition(local, Established)
	case local == Ack:
		c.transition(local, Established)
	}

	if State(c.txState.Load()) != Established {
		return linuxerr.EAGAIN
	}
	return nil
}

// clearCounters zeroes the counters we own and the positions. Counter
// stores are ordered before the state store that follows.
func (c *Channel) clearCounters() {
	c.txCount.Publish(0)
	c.rxCount.Publish(0)
	c.tx.position = 0
	c.rx.position = 0
}

func (c *Channel) transition(from, to State) {
	c.txState.Publish(uint32(to))
	log.Debugf("ivc: state %v -> %v", from, to)
	c.notify()
}
