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
	"unsafe"

	"github.com/tegra-ivc/ivc/pkg/hostarch"
	"golang.org/x/sys/unix"
)

// MsyncCoherency implements Coherency for file-backed shared mappings using
// msync(2). Flush writes dirty pages back to the file and Invalidate asks
// the kernel to drop cached copies, for peers that map the file through a
// different cache. Errors are reported through the optional OnError hook.
//
// It must only be used with memory returned by mmap(2).
type MsyncCoherency struct {
	OnError func(op string, err error)
}

// Invalidate implements Coherency.Invalidate.
func (m MsyncCoherency) Invalidate(mem []byte) {
	m.msync("invalidate", mem, unix.MS_INVALIDATE)
}

// Flush implements Coherency.Flush.
func (m MsyncCoherency) Flush(mem []byte) {
	m.msync("flush", mem, unix.MS_SYNC)
}

func (m MsyncCoherency) msync(op string, mem []byte, flags int) {
	if len(mem) == 0 {
		return
	}
	if err := unix.Msync(pageSpan(mem), flags); err != nil && m.OnError != nil {
		m.OnError(op, err)
	}
}

// pageSpan returns the page-aligned range covering mem, as msync requires.
func pageSpan(mem []byte) []byte {
	start := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	first := hostarch.PageRoundDown(start)
	last, _ := hostarch.PageRoundUp(start + uintptr(len(mem)))
	p := unsafe.Add(unsafe.Pointer(unsafe.SliceData(mem)), -int(start-first))
	return unsafe.Slice((*byte)(p), int(last-first))
}
