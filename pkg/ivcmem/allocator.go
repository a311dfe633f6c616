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

// Package ivcmem provides the shared memory that backs IVC channels: anonymous
// regions allocated from a sealed memfd for endpoints in related processes,
// and file-backed regions for endpoints that only share a path.
package ivcmem

import (
	"fmt"

	"github.com/tegra-ivc/ivc/pkg/hostarch"
	"github.com/tegra-ivc/ivc/pkg/ivc"
	"github.com/tegra-ivc/ivc/pkg/memutil"
	"golang.org/x/sys/unix"
)

// RegionDescriptor represents a channel region, a range of pages in a shared
// memory file holding the two queues of one channel.
type RegionDescriptor struct {
	// FD is the file descriptor representing the shared memory file.
	FD int

	// Offset is the offset into the shared memory file at which the region
	// begins.
	Offset int64

	// Length is the size of the region in bytes.
	Length int

	// NumFrames and FrameSize are the geometry the region was sized for.
	NumFrames uint32
	FrameSize uint32
}

// An Allocator owns a shared memory file, and allocates channel regions from
// it.
type Allocator struct {
	fd        int
	nextAlloc int64
	fileSize  int64
}

// Init must be called on zero-value Allocators before first use. If it
// succeeds, Destroy() must be called once the Allocator is no longer in use.
func (a *Allocator) Init() error {
	fd, err := memutil.CreateMemFD("ivc_channels", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return fmt.Errorf("failed to create memfd: %v", err)
	}
	// Apply F_SEAL_SHRINK to prevent either party from causing SIGBUS in the
	// other by truncating the file, and F_SEAL_SEAL to prevent either party
	// from applying F_SEAL_GROW or F_SEAL_WRITE.
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_SEAL); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to apply memfd seals: %v", err)
	}
	a.fd = fd
	return nil
}

// NewAllocator is a convenience function that returns an initialized
// Allocator allocated on the heap.
func NewAllocator() (*Allocator, error) {
	var a Allocator
	if err := a.Init(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Destroy releases resources owned by a. This invalidates file descriptors
// previously returned by a.FD() and a.Allocate(). Existing mappings remain
// valid.
func (a *Allocator) Destroy() {
	unix.Close(a.fd)
}

// FD represents the file descriptor of the shared memory file backing a.
func (a *Allocator) FD() int {
	return a.fd
}

// Allocate allocates a new region large enough for a channel of the given
// geometry and returns a RegionDescriptor representing it. Regions are
// page-aligned, which satisfies the queue alignment requirement.
func (a *Allocator) Allocate(numFrames, frameSize uint32) (RegionDescriptor, error) {
	need, err := ivc.ChannelSize(numFrames, frameSize)
	if err != nil {
		return RegionDescriptor{}, err
	}
	// Page-align size to ensure that a.nextAlloc remains page-aligned.
	size, ok := hostarch.PageRoundUp(need)
	if !ok || int64(size) <= 0 {
		return RegionDescriptor{}, fmt.Errorf("size %d overflows after rounding up to page size", need)
	}
	end := a.nextAlloc + int64(size) // overflow checked by ensureFileSize
	if err := a.ensureFileSize(end); err != nil {
		return RegionDescriptor{}, err
	}
	start := a.nextAlloc
	a.nextAlloc = end
	return RegionDescriptor{
		FD:        a.fd,
		Offset:    start,
		Length:    int(size),
		NumFrames: numFrames,
		FrameSize: frameSize,
	}, nil
}

func (a *Allocator) ensureFileSize(min int64) error {
	if min <= 0 {
		return fmt.Errorf("file size would overflow")
	}
	if a.fileSize >= min {
		return nil
	}
	newSize := 2 * a.fileSize
	if newSize == 0 {
		newSize = hostarch.PageSize
	}
	for newSize < min {
		newNewSize := newSize * 2
		if newNewSize <= 0 {
			return fmt.Errorf("file size would overflow")
		}
		newSize = newNewSize
	}
	if err := unix.Ftruncate(a.fd, newSize); err != nil {
		return fmt.Errorf("ftruncate failed: %v", err)
	}
	a.fileSize = newSize
	return nil
}
