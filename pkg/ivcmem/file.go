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
	"os"

	"github.com/gofrs/flock"
	"github.com/tegra-ivc/ivc/pkg/cleanup"
	"github.com/tegra-ivc/ivc/pkg/errors/linuxerr"
	"github.com/tegra-ivc/ivc/pkg/hostarch"
	"github.com/tegra-ivc/ivc/pkg/ivc"
	"github.com/tegra-ivc/ivc/pkg/log"
	"github.com/tegra-ivc/ivc/pkg/memutil"
	"golang.org/x/sys/unix"
)

// FileSize returns the size of the file backing a channel of the given
// geometry.
func FileSize(numFrames, frameSize uint32) (int64, error) {
	need, err := ivc.ChannelSize(numFrames, frameSize)
	if err != nil {
		return 0, err
	}
	size, ok := hostarch.PageRoundUp(need)
	if !ok || int64(size) <= 0 {
		return 0, linuxerr.Wrapf(linuxerr.EINVAL, "channel of %d bytes is too large", need)
	}
	return int64(size), nil
}

// lock takes the exclusive lock guarding initialization of the file at
// path. The lock lives in a sibling file so that it doesn't interfere with
// mappings of the region itself.
func lock(path string) (*flock.Flock, error) {
	l := flock.NewFlock(path + ".lock")
	if err := l.Lock(); err != nil {
		return nil, fmt.Errorf("acquiring lock on %q: %w", path, err)
	}
	return l, nil
}

// Create creates the file backing a channel at path, discarding any previous
// contents. The new region is zero-filled, which is an established, empty
// channel.
func Create(path string, numFrames, frameSize uint32) error {
	size, err := FileSize(numFrames, frameSize)
	if err != nil {
		return err
	}
	l, err := lock(path)
	if err != nil {
		return err
	}
	defer l.Unlock()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	// Truncating to zero first discards stale counters.
	if err := f.Truncate(0); err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		return err
	}
	log.Debugf("ivcmem: created %q: %d bytes for %d frames of %d bytes", path, size, numFrames, frameSize)
	return nil
}

// OpenFile maps the file backing a channel at path. If the file does not
// exist or is empty, it is created and zero-filled; exactly one of several
// concurrent openers initializes it. An existing file must match the
// geometry.
func OpenFile(path string, numFrames, frameSize uint32) (*Region, error) {
	size, err := FileSize(numFrames, frameSize)
	if err != nil {
		return nil, err
	}
	l, err := lock(path)
	if err != nil {
		return nil, err
	}
	defer l.Unlock()

	var cu cleanup.Cleanup
	defer cu.Clean()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if os.IsNotExist(err) {
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			// Don't leave a half-initialized file behind.
			cu.Add(func() { os.Remove(path) })
		}
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	switch {
	case fi.Size() == 0:
		if err := f.Truncate(size); err != nil {
			return nil, err
		}
		log.Debugf("ivcmem: initialized %q with %d bytes", path, size)
	case fi.Size() != size:
		return nil, linuxerr.Wrapf(linuxerr.EINVAL, "%q is %d bytes, want %d for %d frames of %d bytes", path, fi.Size(), size, numFrames, frameSize)
	}

	mem, err := memutil.MapSlice(0, uintptr(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED, f.Fd(), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap %q: %v", path, err)
	}
	cu.Release()
	return &Region{
		mem:        mem,
		numFrames:  numFrames,
		frameSize:  frameSize,
		fileBacked: true,
	}, nil
}
