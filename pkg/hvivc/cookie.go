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

// Package hvivc provides reservable IVC channels with blocking helpers, in
// the shape hypervisor IVC clients such as virtual block, DRM and camera
// drivers consume them.
//
// A Cookie serializes access to its channel, so it may be shared by several
// goroutines. Blocking operations wait on the channel's doorbell when one is
// attached and otherwise poll with backoff.
package hvivc

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tegra-ivc/ivc/pkg/errors/linuxerr"
	"github.com/tegra-ivc/ivc/pkg/ivc"
	"github.com/tegra-ivc/ivc/pkg/log"
)

// Options controls blocking behavior.
type Options struct {
	// ResetRetries bounds the number of Notified polls WaitEstablished
	// makes after requesting a reset.
	ResetRetries int

	// PollInterval is the longest a blocked operation waits before
	// rechecking the channel.
	PollInterval time.Duration
}

// DefaultOptions are used for zero fields of Options.
var DefaultOptions = Options{
	ResetRetries: 30,
	PollInterval: 10 * time.Millisecond,
}

func (o Options) withDefaults() Options {
	if o.ResetRetries <= 0 {
		o.ResetRetries = DefaultOptions.ResetRetries
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultOptions.PollInterval
	}
	return o
}

// Waiter blocks until the peer rings this endpoint's doorbell.
type Waiter interface {
	WaitContext(ctx context.Context) error
}

// Cookie is a reserved channel.
type Cookie struct {
	id     uint32
	waiter Waiter
	opts   Options
	warn   log.Logger

	// release is called by Unreserve.
	release func() error

	// mu serializes use of ch.
	mu sync.Mutex
	ch *ivc.Channel

	// released is set once the memory behind ch is unmapped. ch must not
	// be touched afterwards. Protected by mu.
	released bool
}

// NewCookie wraps ch. waiter may be nil, in which case blocking operations
// poll.
func NewCookie(id uint32, ch *ivc.Channel, waiter Waiter, opts Options) *Cookie {
	return &Cookie{
		id:     id,
		ch:     ch,
		waiter: waiter,
		opts:   opts.withDefaults(),
		warn:   log.BasicRateLimitedLogger(5 * time.Second),
	}
}

// ID returns the queue ID.
func (c *Cookie) ID() uint32 {
	return c.id
}

// FrameSize returns the channel's frame size.
func (c *Cookie) FrameSize() uint32 {
	return c.ch.FrameSize()
}

// ChannelReset requests a reset of the channel. It does nothing once the
// cookie is released.
func (c *Cookie) ChannelReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.ch.Reset()
}

// ChannelNotified advances the reset handshake. It returns nil if the channel
// is established.
func (c *Cookie) ChannelNotified() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return c.errReleased()
	}
	return c.ch.Notified()
}

// CanRead returns true if a frame can be read.
func (c *Cookie) CanRead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return false
	}
	return c.ch.CanRead()
}

// CanWrite returns true if a frame can be written.
func (c *Cookie) CanWrite() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return false
	}
	return c.ch.CanWrite()
}

// Read reads one frame without blocking. See ivc.Channel.Read.
func (c *Cookie) Read(ctx context.Context, dst ivc.Buffer, n int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return 0, c.errReleased()
	}
	return c.ch.Read(ctx, dst, n)
}

// Peek reads from the next frame without consuming it. See
// ivc.Channel.Peek.
func (c *Cookie) Peek(ctx context.Context, dst ivc.Buffer, off, size int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return 0, c.errReleased()
	}
	return c.ch.Peek(ctx, dst, off, size)
}

// Write writes one frame without blocking. See ivc.Channel.Write.
func (c *Cookie) Write(ctx context.Context, src ivc.Buffer, n int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return 0, c.errReleased()
	}
	return c.ch.Write(ctx, src, n)
}

// FramesAvailable returns the number of free transmit frames.
func (c *Cookie) FramesAvailable() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return 0
	}
	return c.ch.FramesAvailable()
}

// Stats returns a snapshot of the channel, or zero Stats once the cookie is
// released.
func (c *Cookie) Stats() ivc.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ivc.Stats{}
	}
	return c.ch.Snapshot()
}

// errReleased is returned by operations on a released cookie. Blocked
// Send, Recv and WaitEstablished calls return it too.
func (c *Cookie) errReleased() error {
	return linuxerr.Wrapf(linuxerr.EINVAL, "queue %d is no longer reserved", c.id)
}

// WaitEstablished resets the channel and drives the handshake until the
// channel is established. It gives up with ETIMEDOUT after
// Options.ResetRetries attempts.
func (c *Cookie) WaitEstablished(ctx context.Context) error {
	c.ChannelReset()
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.PollInterval), uint64(c.opts.ResetRetries)), ctx)
	err := backoff.Retry(func() error {
		err := c.ChannelNotified()
		if err != nil && !linuxerr.Equals(linuxerr.EAGAIN, err) {
			return &backoff.PermanentError{Err: err}
		}
		return err
	}, b)
	if err == nil {
		log.Debugf("hvivc: queue %d established", c.id)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if linuxerr.Equals(linuxerr.EAGAIN, err) {
		return linuxerr.Wrapf(linuxerr.ETIMEDOUT, "queue %d not established after %d attempts", c.id, c.opts.ResetRetries)
	}
	return err
}

// Send writes p as one frame, blocking until there is room. p must fit in a
// frame.
func (c *Cookie) Send(ctx context.Context, p []byte) (int, error) {
	if len(p) > int(c.ch.FrameSize()) {
		return 0, linuxerr.EMSGSIZE
	}
	return c.retry(ctx, func() (int, error) {
		return c.Write(ctx, ivc.Owned(p), len(p))
	})
}

// Recv reads one frame into p, blocking until one arrives. If p is shorter
// than a frame, the rest of the frame is discarded. An empty p is rejected
// with EINVAL, since it would consume a frame without reading any of it.
func (c *Cookie) Recv(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, linuxerr.Wrapf(linuxerr.EINVAL, "queue %d: empty receive buffer", c.id)
	}
	n := min(len(p), int(c.ch.FrameSize()))
	return c.retry(ctx, func() (int, error) {
		return c.Read(ctx, ivc.Owned(p), n)
	})
}

// Transfer sends req and waits for the response, as request/response
// protocols over IVC do.
func (c *Cookie) Transfer(ctx context.Context, req, resp []byte) (int, error) {
	if _, err := c.Send(ctx, req); err != nil {
		return 0, err
	}
	return c.Recv(ctx, resp)
}

// retry runs op until it succeeds or fails with something other than
// ENOSPC or ECONNRESET. Between attempts it waits for the doorbell and
// advances the reset handshake, as an interrupt handler would.
func (c *Cookie) retry(ctx context.Context, op func() (int, error)) (int, error) {
	var b *backoff.ExponentialBackOff
	for {
		n, err := op()
		switch {
		case err == nil:
			return n, nil
		case linuxerr.Equals(linuxerr.ENOSPC, err):
		case linuxerr.Equals(linuxerr.ECONNRESET, err):
			c.warn.Infof("hvivc: queue %d is resetting", c.id)
		default:
			return 0, err
		}

		if c.waiter != nil {
			if err := c.waitDoorbell(ctx); err != nil {
				return 0, err
			}
		} else {
			if b == nil {
				b = c.newBackOff()
			}
			if err := sleep(ctx, b.NextBackOff()); err != nil {
				return 0, err
			}
		}
		if err := c.ChannelNotified(); err != nil && !linuxerr.Equals(linuxerr.EAGAIN, err) {
			return 0, err
		}
	}
}

// waitDoorbell waits for the doorbell for at most one poll interval.
func (c *Cookie) waitDoorbell(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, c.opts.PollInterval)
	defer cancel()
	err := c.waiter.WaitContext(wctx)
	if err == context.DeadlineExceeded && ctx.Err() == nil {
		// Poll interval elapsed; recheck the channel.
		return nil
	}
	return err
}

func (c *Cookie) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.PollInterval / 10
	b.MaxInterval = c.opts.PollInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
