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

// Package hostarch contains host arch address operations for user memory.
package hostarch

import (
	"encoding/binary"
	"fmt"
)

const (
	// PageSize is the system page size.
	PageSize = 1 << PageShift

	// PageMask is the mask of the in-page offset bits.
	PageMask = PageSize - 1

	// CacheLineSize is the coherency granule assumed for memory shared with
	// another processor. Queue headers and frames are aligned to it.
	CacheLineSize = 64
)

// ByteOrder is the native byte order (little endian on every supported
// architecture).
var ByteOrder = binary.LittleEndian

// Addr represents an address in an unspecified address space.
type Addr uintptr

// AddLength adds the given length to start and returns the result. ok is true
// iff adding the length did not overflow the range of Addr.
//
// Note: This function is usually used to get the end of an address range
// defined by its start address and length. Since the resulting end is
// exclusive, end > 0 is guaranteed to be the case.
func (v Addr) AddLength(length uint64) (end Addr, ok bool) {
	end = v + Addr(length)
	// The second half of the following check is needed in case uintptr is
	// smaller than 64 bits.
	ok = end >= v && length <= uint64(^Addr(0))
	return
}

// RoundDown returns the address rounded down to the nearest page boundary.
func (v Addr) RoundDown() Addr {
	return v & ^Addr(PageMask)
}

// RoundUp returns the address rounded up to the nearest page boundary. ok is
// true iff rounding up did not wrap around.
func (v Addr) RoundUp() (addr Addr, ok bool) {
	addr = Addr(v + PageMask).RoundDown()
	ok = addr >= v
	return
}

// PageOffset returns the offset of v into the current page.
func (v Addr) PageOffset() uint64 {
	return uint64(v & PageMask)
}

// IsPageAligned returns true if v.PageOffset() == 0.
func (v Addr) IsPageAligned() bool {
	return v.PageOffset() == 0
}

// IsCacheLineAligned returns true if v is a multiple of CacheLineSize.
func (v Addr) IsCacheLineAligned() bool {
	return v&(CacheLineSize-1) == 0
}

// String implements fmt.Stringer.String.
func (v Addr) String() string {
	return fmt.Sprintf("%#x", uintptr(v))
}

// PageRoundDown is equivalent to Addr.RoundDown, but operates on any
// unsigned integer type.
func PageRoundDown[T ~uint64 | ~uintptr](x T) T {
	return x &^ PageMask
}

// PageRoundUp is equivalent to Addr.RoundUp, but operates on any unsigned
// integer type.
func PageRoundUp[T ~uint64 | ~uintptr](x T) (val T, ok bool) {
	val = PageRoundDown(x + PageMask)
	ok = val >= x
	return
}

// CacheLineRoundUp rounds x up to a multiple of CacheLineSize. ok is true iff
// rounding up did not wrap around.
func CacheLineRoundUp(x uint64) (val uint64, ok bool) {
	val = (x + CacheLineSize - 1) &^ (CacheLineSize - 1)
	ok = val >= x
	return
}
