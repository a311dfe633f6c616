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

	"github.com/tegra-ivc/ivc/pkg/atomicbitops"
	"github.com/tegra-ivc/ivc/pkg/hostarch"
)

// header is the layout of a queue header in shared memory. Each block is
// written by exactly one endpoint: tx by the transmitter and rx by the
// receiver. The layout is fixed and must not change.
type header struct {
	tx txBlock
	rx rxBlock
}

type txBlock struct {
	count atomicbitops.Uint32
	state atomicbitops.Uint32
	_     [Align - 8]byte
}

type rxBlock struct {
	count atomicbitops.Uint32
	_     [Align - 4]byte
}

// Assert the layout at compile time; both array lengths must be
// non-negative.
var (
	_ [unsafe.Sizeof(header{}) - HeaderSize]struct{}
	_ [HeaderSize - unsafe.Sizeof(header{})]struct{}
	_ [unsafe.Offsetof(header{}.rx) - Align]struct{}
	_ [Align - unsafe.Offsetof(header{}.rx)]struct{}
	_ [unsafe.Offsetof(txBlock{}.state) - 4]struct{}
	_ [4 - unsafe.Offsetof(txBlock{}.state)]struct{}
)

// overlayHeader returns the header at the start of mem.
//
// Preconditions: len(mem) >= HeaderSize; mem is Align-aligned.
func overlayHeader(mem []byte) *header {
	return (*header)(unsafe.Pointer(unsafe.SliceData(mem)))
}

// txLine returns the cache line holding the transmitter's words.
func (h *header) txLine() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&h.tx)), Align)
}

// rxLine returns the cache line holding the receiver's words.
func (h *header) rxLine() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&h.rx)), Align)
}

// ownedWord is a header word this endpoint is the only writer of.
type ownedWord struct {
	word      *atomicbitops.Uint32
	line      []byte
	coherency Coherency
}

// Load returns the current value. Since only we store to the word, no
// invalidation is needed.
func (w ownedWord) Load() uint32 {
	return w.word.Load()
}

// Publish stores v and makes it visible to the peer. The store has release
// semantics: every write to shared memory made before Publish is visible to
// a peer that observes v.
func (w ownedWord) Publish(v uint32) {
	w.word.Store(v)
	if w.coherency != nil {
		w.coherency.Flush(w.line)
	}
}

// peerWord is a header word written only by the peer. It can be read but
// never stored to.
type peerWord struct {
	word      *atomicbitops.Uint32
	line      []byte
	coherency Coherency
}

// Snapshot returns the value from the local view of the word, which may be
// stale on non-coherent memory.
func (w peerWord) Snapshot() uint32 {
	return w.word.Load()
}

// Refresh invalidates the local view of the word and returns the peer's
// latest published value. The load has acquire semantics.
func (w peerWord) Refresh() uint32 {
	w.invalidate()
	return w.word.Load()
}

func (w peerWord) invalidate() {
	if w.coherency != nil {
		w.coherency.Invalidate(w.line)
	}
}

func addrOf(b []byte) hostarch.Addr {
	return hostarch.Addr(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}

// overlaps returns true if a and b share any byte.
func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	aStart, bStart := addrOf(a), addrOf(b)
	aEnd, bEnd := aStart+hostarch.Addr(len(a)), bStart+hostarch.Addr(len(b))
	return aStart < bEnd && bStart < aEnd
}
