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

package memutil

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestMapSharedMemFD(t *testing.T) {
	fd, err := CreateMemFD("memutil_test", 0)
	if err != nil {
		t.Fatalf("CreateMemFD failed: %v", err)
	}
	defer unix.Close(fd)
	if err := unix.Ftruncate(fd, 4096); err != nil {
		t.Fatalf("Ftruncate failed: %v", err)
	}

	a, err := MapSlice(0, 4096, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED, uintptr(fd), 0)
	if err != nil {
		t.Fatalf("MapSlice failed: %v", err)
	}
	defer UnmapSlice(a)
	b, err := MapSlice(0, 4096, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED, uintptr(fd), 0)
	if err != nil {
		t.Fatalf("MapSlice failed: %v", err)
	}
	defer UnmapSlice(b)

	a[100] = 0x5a
	if b[100] != 0x5a {
		t.Errorf("second mapping did not observe write: got %#x", b[100])
	}
}
