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

// Coherency performs cache maintenance on shared memory that is not coherent
// between the two endpoints. Channels call it with the exact ranges they are
// about to trust or have just written: a header cache line or a frame.
type Coherency interface {
	// Invalidate discards any locally cached copy of mem, so that the next
	// load observes the peer's latest write.
	Invalidate(mem []byte)

	// Flush writes back any locally cached copy of mem, so that the peer
	// can observe it.
	Flush(mem []byte)
}

// CoherencyFuncs adapts a pair of functions to Coherency. A nil function is
// a no-op.
type CoherencyFuncs struct {
	InvalidateFunc func(mem []byte)
	FlushFunc      func(mem []byte)
}

// Invalidate implements Coherency.Invalidate.
func (f CoherencyFuncs) Invalidate(mem []byte) {
	if f.InvalidateFunc != nil {
		f.InvalidateFunc(mem)
	}
}

// Flush implements Coherency.Flush.
func (f CoherencyFuncs) Flush(mem []byte) {
	if f.FlushFunc != nil {
		f.FlushFunc(mem)
	}
}
