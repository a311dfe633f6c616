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
	"context"
	"testing"

	"github.com/tegra-ivc/ivc/pkg/errors/linuxerr"
)

func TestEmptyFullSymmetry(t *testing.T) {
	bases := []uint32{0, 1, 1000, 1<<31 - 1, 1 << 31, ^uint32(0) - 8, ^uint32(0)}
	for _, n := range []uint32{1, 2, 4, 7, 64} {
		for _, rx := range bases {
			for inFlight := uint32(0); inFlight <= n; inFlight++ {
				tx := rx + inFlight
				empty, full := Empty(tx, rx, n), Full(tx, rx, n)
				if want := inFlight == 0; empty != want {
					t.Errorf("Empty(%d, %d, %d) = %t, want %t", tx, rx, n, empty, want)
				}
				if want := inFlight == n; full != want {
					t.Errorf("Full(%d, %d, %d) = %t, want %t", tx, rx, n, full, want)
				}
				if empty && full {
					t.Errorf("Empty and Full both true for tx=%d rx=%d n=%d", tx, rx, n)
				}
				if OverFull(tx, rx, n) {
					t.Errorf("OverFull(%d, %d, %d) = true for a legitimate difference", tx, rx, n)
				}
				if free := n - (tx - rx); free != n-inFlight {
					t.Errorf("free slots for tx=%d rx=%d n=%d = %d, want %d", tx, rx, n, free, n-inFlight)
				}
			}
		}
	}
}

func TestOverFullReportsEmpty(t *testing.T) {
	for _, tc := range []struct {
		tx, rx, n uint32
	}{
		{tx: 5, rx: 0, n: 4},
		{tx: 9999, rx: 0, n: 4},
		{tx: 0, rx: 1, n: 4},
		{tx: 3, rx: ^uint32(0) - 5, n: 4},
		{tx: 1 << 31, rx: 0, n: 1024},
	} {
		if !Empty(tc.tx, tc.rx, tc.n) {
			t.Errorf("Empty(%d, %d, %d) = false, want true for over-full counters", tc.tx, tc.rx, tc.n)
		}
		if !Full(tc.tx, tc.rx, tc.n) {
			t.Errorf("Full(%d, %d, %d) = false, want true for over-full counters", tc.tx, tc.rx, tc.n)
		}
		if !OverFull(tc.tx, tc.rx, tc.n) {
			t.Errorf("OverFull(%d, %d, %d) = false, want true", tc.tx, tc.rx, tc.n)
		}
	}
}

func TestExampleScenario(t *testing.T) {
	ctx := context.Background()
	p := newTestPair(t, 4, 64)
	hdr := p.a.tx.hdr

	if !Empty(hdr.tx.count.Load(), hdr.rx.count.Load(), 4) || p.a.TXFull() || p.a.FramesAvailable() != 4 {
		t.Fatalf("fresh queue: empty=%t full=%t available=%d", p.b.RXEmpty(), p.a.TXFull(), p.a.FramesAvailable())
	}

	frame := make([]byte, 64)
	if _, err := p.a.Write(ctx, Owned(frame), len(frame)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := hdr.tx.count.Load(); got != 1 {
		t.Fatalf("tx.count = %d, want 1", got)
	}
	if p.b.RXEmpty() {
		t.Fatalf("RXEmpty() = true after one write")
	}

	for i := 0; i < 3; i++ {
		if _, err := p.a.Write(ctx, Owned(frame), len(frame)); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}
	if !p.a.TXFull() {
		t.Errorf("TXFull() = false with 4 of 4 frames written")
	}
	if got := p.a.FramesAvailable(); got != 0 {
		t.Errorf("FramesAvailable() = %d, want 0", got)
	}
	if _, err := p.a.Write(ctx, Owned(frame), len(frame)); !linuxerr.Equals(linuxerr.ENOSPC, err) {
		t.Errorf("Write on full queue = %v, want ENOSPC", err)
	}

	if _, err := p.b.Read(ctx, Owned(frame), len(frame)); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := hdr.rx.count.Load(); got != 1 {
		t.Fatalf("rx.count = %d, want 1", got)
	}
	if p.a.TXFull() {
		t.Errorf("TXFull() = true after one read")
	}
	if got := p.a.FramesAvailable(); got != 1 {
		t.Errorf("FramesAvailable() = %d, want 1", got)
	}

	// A corrupt peer claims 9999 frames.
	hdr.tx.count.Store(9999)
	hdr.rx.count.Store(0)
	if !p.b.RXEmpty() {
		t.Errorf("RXEmpty() = false with tx=9999 rx=0")
	}
	if err := p.b.CheckRead(); !linuxerr.Equals(linuxerr.ENOSPC, err) {
		t.Errorf("CheckRead() = %v, want ENOSPC", err)
	}
	if got := p.b.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
	if got := p.b.Snapshot().OverFull; got == 0 {
		t.Errorf("Snapshot().OverFull = 0, want over-full observations recorded")
	}
}

func TestWrapAround(t *testing.T) {
	ctx := context.Background()
	p := newTestPair(t, 4, 64)
	start := ^uint32(0) - 1
	p.a.tx.hdr.tx.count.Store(start)
	p.a.tx.hdr.rx.count.Store(start)
	if err := p.a.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := p.b.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	frame := make([]byte, 64)
	for i := 0; i < 4; i++ {
		frame[0] = byte(i)
		if _, err := p.a.Write(ctx, Owned(frame), len(frame)); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}
	if got := p.a.tx.hdr.tx.count.Load(); got != 2 {
		t.Fatalf("tx.count = %d, want 2 after wrapping", got)
	}
	if !p.a.TXFull() || p.a.FramesAvailable() != 0 {
		t.Errorf("after wrap: TXFull() = %t, FramesAvailable() = %d, want true, 0", p.a.TXFull(), p.a.FramesAvailable())
	}
	if got := p.b.Pending(); got != 4 {
		t.Errorf("Pending() = %d, want 4", got)
	}
	for i := 0; i < 4; i++ {
		if _, err := p.b.Read(ctx, Owned(frame), len(frame)); err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
		if frame[0] != byte(i) {
			t.Errorf("frame %d has tag %d", i, frame[0])
		}
	}
	if !p.b.RXEmpty() || p.a.FramesAvailable() != 4 {
		t.Errorf("after draining: RXEmpty() = %t, FramesAvailable() = %d, want true, 4", p.b.RXEmpty(), p.a.FramesAvailable())
	}
}

func TestSyncPositions(t *testing.T) {
	for _, n := range []uint32{1, 3, 4, 5, 16} {
		for _, counts := range [][2]uint32{{0, 0}, {7, 3}, {^uint32(0), 12345}, {1 << 31, 1<<31 + 1}} {
			p := newTestPair(t, n, 64)
			p.a.tx.hdr.tx.count.Store(counts[0])
			p.b.tx.hdr.rx.count.Store(counts[1])
			if err := p.a.Sync(); err != nil {
				t.Fatalf("Sync failed: %v", err)
			}
			if got, want := p.a.tx.position, counts[0]%n; got != want {
				t.Errorf("n=%d tx.count=%d: tx position = %d, want %d", n, counts[0], got, want)
			}
			if got, want := p.a.rx.position, counts[1]%n; got != want {
				t.Errorf("n=%d rx.count=%d: rx position = %d, want %d", n, counts[1], got, want)
			}
		}
	}

	var nilChannel *Channel
	if err := nilChannel.Sync(); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("Sync on nil channel = %v, want EINVAL", err)
	}
}

func TestStateGating(t *testing.T) {
	ctx := context.Background()
	for _, s := range []State{Sync, Ack, State(42)} {
		p := newTestPair(t, 4, 64)
		frame := make([]byte, 64)
		if _, err := p.b.Write(ctx, Owned(frame), len(frame)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		p.a.tx.hdr.tx.state.Store(uint32(s))
		before := p.a.Snapshot()

		if err := p.a.CheckRead(); !linuxerr.Equals(linuxerr.ECONNRESET, err) {
			t.Errorf("state %v: CheckRead() = %v, want ECONNRESET", s, err)
		}
		if err := p.a.CheckWrite(); !linuxerr.Equals(linuxerr.ECONNRESET, err) {
			t.Errorf("state %v: CheckWrite() = %v, want ECONNRESET", s, err)
		}
		if p.a.CanRead() || p.a.CanWrite() {
			t.Errorf("state %v: CanRead() = %t, CanWrite() = %t, want false", s, p.a.CanRead(), p.a.CanWrite())
		}
		if _, err := p.a.Read(ctx, Owned(frame), len(frame)); !linuxerr.Equals(linuxerr.ECONNRESET, err) {
			t.Errorf("state %v: Read() = %v, want ECONNRESET", s, err)
		}
		if _, err := p.a.Peek(ctx, Owned(frame), 0, 8); !linuxerr.Equals(linuxerr.ECONNRESET, err) {
			t.Errorf("state %v: Peek() = %v, want ECONNRESET", s, err)
		}
		if _, err := p.a.Write(ctx, Owned(frame), len(frame)); !linuxerr.Equals(linuxerr.ECONNRESET, err) {
			t.Errorf("state %v: Write() = %v, want ECONNRESET", s, err)
		}
		if err := p.a.ReadAdvance(); !linuxerr.Equals(linuxerr.ECONNRESET, err) {
			t.Errorf("state %v: ReadAdvance() = %v, want ECONNRESET", s, err)
		}
		if err := p.a.WriteAdvance(); !linuxerr.Equals(linuxerr.ECONNRESET, err) {
			t.Errorf("state %v: WriteAdvance() = %v, want ECONNRESET", s, err)
		}

		after := p.a.Snapshot()
		if after.TXCount != before.TXCount || after.RXCount != before.RXCount || after.TXPosition != before.TXPosition || after.RXPosition != before.RXPosition {
			t.Errorf("state %v: counters moved: before %+v, after %+v", s, before, after)
		}
	}
}

type recordingCoherency struct {
	invalidated [][]byte
	flushed     [][]byte
}

func (r *recordingCoherency) Invalidate(mem []byte) { r.invalidated = append(r.invalidated, mem) }
func (r *recordingCoherency) Flush(mem []byte)      { r.flushed = append(r.flushed, mem) }

func (r *recordingCoherency) reset() {
	r.invalidated = nil
	r.flushed = nil
}

func sameRange(a, b []byte) bool {
	return len(a) == len(b) && addrOf(a) == addrOf(b)
}

func TestInvalidateOnlyWhenStale(t *testing.T) {
	ctx := context.Background()
	size, _ := QueueSize(4, 64)
	qa, qb := alignedBytes(int(size)), alignedBytes(int(size))
	rc := &recordingCoherency{}
	a, err := New(qb, qa, Config{NumFrames: 4, FrameSize: 64})
	if err != nil {
		t.Fatalf("New(a) failed: %v", err)
	}
	b, err := New(qa, qb, Config{NumFrames: 4, FrameSize: 64, Coherency: rc})
	if err != nil {
		t.Fatalf("New(b) failed: %v", err)
	}
	peerTXLine := b.rx.hdr.txLine()

	// Empty cached view: the gate must refresh the peer's counter.
	rc.reset()
	if err := b.CheckRead(); !linuxerr.Equals(linuxerr.ENOSPC, err) {
		t.Fatalf("CheckRead() = %v, want ENOSPC", err)
	}
	if len(rc.invalidated) != 1 || !sameRange(rc.invalidated[0], peerTXLine) {
		t.Errorf("CheckRead() on empty queue invalidated %d ranges, want the peer's tx line", len(rc.invalidated))
	}

	for i := 0; i < 2; i++ {
		if _, err := a.Write(ctx, Owned(make([]byte, 64)), 64); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	// Non-empty cached view: no invalidation needed.
	rc.reset()
	if err := b.CheckRead(); err != nil {
		t.Fatalf("CheckRead() = %v, want nil", err)
	}
	if len(rc.invalidated) != 0 {
		t.Errorf("CheckRead() on non-empty queue invalidated %d ranges, want 0", len(rc.invalidated))
	}

	// Reading a frame invalidates the frame and publishing the release
	// flushes our rx line.
	rc.reset()
	if _, err := b.Read(ctx, Owned(make([]byte, 64)), 64); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	frame := b.rx.frame(0, 64)
	var sawFrame bool
	for _, r := range rc.invalidated {
		if sameRange(r, frame) {
			sawFrame = true
		}
	}
	if !sawFrame {
		t.Errorf("Read() did not invalidate the frame it read")
	}
	if len(rc.flushed) != 1 || !sameRange(rc.flushed[0], b.rx.hdr.rxLine()) {
		t.Errorf("Read() flushed %d ranges, want our rx line", len(rc.flushed))
	}

	// Writing flushes the frame before the counter line.
	rc.reset()
	if _, err := b.Write(ctx, Owned(make([]byte, 64)), 64); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(rc.flushed) != 2 || !sameRange(rc.flushed[0], b.tx.frame(0, 64)) || !sameRange(rc.flushed[1], b.tx.hdr.txLine()) {
		t.Errorf("Write() flushed %d ranges, want frame then tx line", len(rc.flushed))
	}
}

func TestNotifyOnTransitions(t *testing.T) {
	ctx := context.Background()
	p := newTestPair(t, 2, 64)
	frame := make([]byte, 64)

	// Empty to non-empty rings the reader.
	if _, err := p.a.Write(ctx, Owned(frame), 64); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := p.notifyB.Count(); got != 1 {
		t.Errorf("notifications to b after first write = %d, want 1", got)
	}
	if _, err := p.a.Write(ctx, Owned(frame), 64); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := p.notifyB.Count(); got != 1 {
		t.Errorf("notifications to b after second write = %d, want 1", got)
	}

	// Full to non-full rings the writer.
	if _, err := p.b.Read(ctx, Owned(frame), 64); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := p.notifyA.Count(); got != 1 {
		t.Errorf("notifications to a after first read = %d, want 1", got)
	}
	if _, err := p.b.Read(ctx, Owned(frame), 64); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := p.notifyA.Count(); got != 1 {
		t.Errorf("notifications to a after second read = %d, want 1", got)
	}
}
