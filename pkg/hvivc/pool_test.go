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

package hvivc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tegra-ivc/ivc/pkg/errors/linuxerr"
	"golang.org/x/sync/errgroup"
)

func testPools(t *testing.T) (*Pool, *Pool) {
	t.Helper()
	root := t.TempDir()
	tableFor := func(side string) *Table {
		return &Table{Queues: []Queue{
			{ID: 1, Name: "vblk0", FrameSize: 128, NumFrames: 8, Side: side},
			{ID: 2, Name: "camera", FrameSize: 64, NumFrames: 4, Side: side},
		}}
	}
	a, err := NewPool(root, tableFor("a"), testOptions)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	b, err := NewPool(root, tableFor("b"), testOptions)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return a, b
}

func TestPoolReserve(t *testing.T) {
	a, _ := testPools(t)

	c, err := a.Reserve(1)
	if err != nil {
		t.Fatalf("Reserve(1) failed: %v", err)
	}
	if c.ID() != 1 || c.FrameSize() != 128 {
		t.Errorf("cookie has id %d frame size %d, want 1 and 128", c.ID(), c.FrameSize())
	}
	if _, err := a.Reserve(1); !errors.Is(err, linuxerr.EBUSY) {
		t.Errorf("second Reserve(1) = %v, want EBUSY", err)
	}
	if _, err := a.Reserve(9); !errors.Is(err, linuxerr.ENOENT) {
		t.Errorf("Reserve(9) = %v, want ENOENT", err)
	}

	if err := a.Unreserve(c); err != nil {
		t.Fatalf("Unreserve failed: %v", err)
	}
	if err := a.Unreserve(c); !errors.Is(err, linuxerr.EINVAL) {
		t.Errorf("second Unreserve = %v, want EINVAL", err)
	}
	c, err = a.Reserve(1)
	if err != nil {
		t.Fatalf("Reserve(1) after Unreserve failed: %v", err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := a.Reserve(2); !errors.Is(err, linuxerr.EINVAL) {
		t.Errorf("Reserve after Close = %v, want EINVAL", err)
	}
}

func TestPoolsExchangeFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pa, pb := testPools(t)

	ca, err := pa.Reserve(2)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	cb, err := pb.Reserve(2)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	establish(t, ctx, ca, cb)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := 0; i < 20; i++ {
			if _, err := ca.Send(gctx, []byte{byte(i)}); err != nil {
				return err
			}
		}
		return nil
	})
	got := make([]byte, 0, 20)
	g.Go(func() error {
		buf := make([]byte, 1)
		for i := 0; i < 20; i++ {
			if _, err := cb.Recv(gctx, buf); err != nil {
				return err
			}
			got = append(got, buf[0])
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	for i, b := range got {
		if b != byte(i) {
			t.Fatalf("frame %d carries %d", i, b)
		}
	}

	table := pa.Queues()
	if len(table.Queues) != 2 || table.Queues[0].ID != 1 {
		t.Errorf("Queues() = %+v, want both queues sorted", table.Queues)
	}
}

func TestUnreserveWakesBlockedRecv(t *testing.T) {
	a, _ := testPools(t)
	c, err := a.Reserve(1)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Recv(context.Background(), make([]byte, 128))
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	if err := a.Unreserve(c); err != nil {
		t.Fatalf("Unreserve failed: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, linuxerr.EINVAL) {
			t.Errorf("Recv after Unreserve = %v, want EINVAL", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Recv still blocked after Unreserve")
	}

	// Every operation on the released cookie fails without touching the
	// unmapped channel.
	ctx := context.Background()
	if _, err := c.Send(ctx, []byte("late")); !errors.Is(err, linuxerr.EINVAL) {
		t.Errorf("Send after Unreserve = %v, want EINVAL", err)
	}
	if err := c.ChannelNotified(); !errors.Is(err, linuxerr.EINVAL) {
		t.Errorf("ChannelNotified after Unreserve = %v, want EINVAL", err)
	}
	if err := c.WaitEstablished(ctx); !errors.Is(err, linuxerr.EINVAL) {
		t.Errorf("WaitEstablished after Unreserve = %v, want EINVAL", err)
	}
	if c.CanRead() || c.CanWrite() || c.FramesAvailable() != 0 {
		t.Errorf("released cookie reports a usable channel")
	}
	if got := c.Stats(); got.NumFrames != 0 {
		t.Errorf("Stats() after Unreserve = %+v, want zero", got)
	}
}

func TestCloseWakesBlockedSend(t *testing.T) {
	a, _ := testPools(t)
	c, err := a.Reserve(2)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	ctx := context.Background()
	// Nobody reads side b, so the fifth frame blocks.
	for i := 0; i < 4; i++ {
		if _, err := c.Send(ctx, []byte{byte(i)}); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Send(ctx, []byte{4})
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, linuxerr.EINVAL) {
			t.Errorf("Send after Close = %v, want EINVAL", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Send still blocked after Close")
	}
}
