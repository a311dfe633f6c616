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
	"github.com/tegra-ivc/ivc/pkg/hostarch"
	"github.com/tegra-ivc/ivc/pkg/usermem"
)

// Buffer is the source or destination of a frame copy. It is either Owned or
// External.
type Buffer interface {
	isBuffer()
}

// Owned is memory owned by the caller. Copies to and from it cannot fault.
type Owned []byte

func (Owned) isBuffer() {}

// External is memory in another address space, such as a client's mapping,
// reached through an IO. Copies may fail part way through.
type External struct {
	IO   usermem.IO
	Addr hostarch.Addr
}

func (External) isBuffer() {}

// checkBuffer returns EINVAL if b cannot be used for a copy of n bytes.
func checkBuffer(b Buffer, n int) error {
	switch b := b.(type) {
	case Owned:
		if len(b) < n {
			return linuxerr.EINVAL
		}
	case External:
		if b.IO == nil {
			return linuxerr.EINVAL
		}
	default:
		return linuxerr.EINVAL
	}
	return nil
}

// copyOut copies src into dst. A short copy to External memory is EFAULT.
func copyOut(ctx context.Context, dst Buffer, src []byte) error {
	switch dst := dst.(type) {
	case Owned:
		copy(dst, src)
		return nil
	case External:
		n, err := dst.IO.CopyOut(ctx, dst.Addr, src)
		if err == nil && n < len(src) {
			err = linuxerr.EFAULT
		}
		return err
	default:
		return linuxerr.EINVAL
	}
}

// copyIn copies from src into dst. A short copy from External memory is
// EFAULT.
func copyIn(ctx context.Context, src Buffer, dst []byte) error {
	switch src := src.(type) {
	case Owned:
		copy(dst, src)
		return nil
	case External:
		n, err := src.IO.CopyIn(ctx, src.Addr, dst)
		if err == nil && n < len(dst) {
			err = linuxerr.EFAULT
		}
		return err
	default:
		return linuxerr.EINVAL
	}
}
