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

	"github.com/tegra-ivc/ivc/pkg/errors/linuxerr"
)

// Read copies the first n bytes of the next frame into dst and releases the
// frame. It returns n on success.
//
// If the copy fails, the frame is not released and will be returned again by
// the next read.
func (c *Channel) Read(ctx context.Context, dst Buffer, n int) (int, error) {
	if n < 0 || n > int(c.frameSize) {
		return 0, linuxerr.EINVAL
	}
	if err := checkBuffer(dst, n); err != nil {
		return 0, err
	}
	frame, err := c.NextReadFrame()
	if err != nil {
		return 0, err
	}
	if err := copyOut(ctx, dst, frame[:n]); err != nil {
		c.faults.Add(1)
		c.warn.Debugf("ivc: read of %d bytes from frame %d failed: %v", n, c.rx.position, err)
		return 0, err
	}
	if err := c.ReadAdvance(); err != nil {
		return 0, err
	}
	return n, nil
}

// Peek copies size bytes starting at off within the next frame into dst,
// without releasing the frame. It returns size on success.
func (c *Channel) Peek(ctx context.Context, dst Buffer, off, size int) (int, error) {
	if off < 0 || size < 0 || off > int(c.frameSize) || size > int(c.frameSize)-off {
		return 0, linuxerr.EINVAL
	}
	if err := checkBuffer(dst, size); err != nil {
		return 0, err
	}
	frame, err := c.NextReadFrame()
	if err != nil {
		return 0, err
	}
	if err := copyOut(ctx, dst, frame[off:off+size]); err != nil {
		c.faults.Add(1)
		return 0, err
	}
	return size, nil
}

// Write copies n bytes from src into the next frame and publishes it. It
// returns n on success.
//
// If the copy fails, the frame is not published; its contents are undefined
// and will be overwritten by the next write.
func (c *Channel) Write(ctx context.Context, src Buffer, n int) (int, error) {
	if n < 0 || n > int(c.frameSize) {
		return 0, linuxerr.EINVAL
	}
	if err := checkBuffer(src, n); err != nil {
		return 0, err
	}
	frame, err := c.NextWriteFrame()
	if err != nil {
		return 0, err
	}
	if err := copyIn(ctx, src, frame[:n]); err != nil {
		c.faults.Add(1)
		c.warn.Debugf("ivc: write of %d bytes to frame %d failed: %v", n, c.tx.position, err)
		return 0, err
	}
	if err := c.WriteAdvance(); err != nil {
		return 0, err
	}
	return n, nil
}
