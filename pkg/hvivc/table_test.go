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

package hvivc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tegra-ivc/ivc/pkg/errors/linuxerr"
)

const testTable = `
[[queue]]
id = 3
name = "camera"
frame_size = 256
num_frames = 8
side = "b"

[[queue]]
id = 1
name = "vblk0"
frame_size = 128
num_frames = 16
path = "/dev/shm/vblk0"
side = "a"
`

const testYAMLTable = `
queue:
  - id: 3
    name: camera
    frame_size: 256
    num_frames: 8
    side: b
  - id: 1
    name: vblk0
    frame_size: 128
    num_frames: 16
    path: /dev/shm/vblk0
    side: a
`

func writeFile(t *testing.T, contents string) string {
	return writeNamedFile(t, "queues.toml", contents)
}

func writeNamedFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoadTable(t *testing.T) {
	table, err := LoadTable(writeFile(t, testTable))
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	want := &Table{Queues: []Queue{
		{ID: 3, Name: "camera", FrameSize: 256, NumFrames: 8, Side: "b"},
		{ID: 1, Name: "vblk0", FrameSize: 128, NumFrames: 16, Path: "/dev/shm/vblk0", Side: "a"},
	}}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Errorf("LoadTable() mismatch (-want +got):\n%s", diff)
	}

	q, ok := table.Lookup(1)
	if !ok {
		t.Fatalf("Lookup(1) failed")
	}
	if got := q.ResolvePath("/root"); got != "/dev/shm/vblk0" {
		t.Errorf("ResolvePath() = %q, want absolute path unchanged", got)
	}
	q, _ = table.Lookup(3)
	if got := q.ResolvePath("/run/ivc"); got != "/run/ivc/camera" {
		t.Errorf("ResolvePath() = %q, want %q", got, "/run/ivc/camera")
	}
	if _, ok := table.Lookup(2); ok {
		t.Errorf("Lookup(2) succeeded on a missing queue")
	}
}

func TestTableCopy(t *testing.T) {
	table, err := LoadTable(writeFile(t, testTable))
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	c := table.Copy()
	if c.Queues[0].ID != 1 || c.Queues[1].ID != 3 {
		t.Errorf("Copy() not sorted by id: %+v", c.Queues)
	}
	c.Queues[0].Name = "changed"
	if q, _ := table.Lookup(1); q.Name != "vblk0" {
		t.Errorf("modifying the copy changed the original: %+v", q)
	}
}

func TestTableValidate(t *testing.T) {
	for _, tc := range []struct {
		name     string
		contents string
	}{
		{
			name: "duplicate id",
			contents: `
[[queue]]
id = 1
frame_size = 64
num_frames = 4
side = "a"
[[queue]]
id = 1
frame_size = 64
num_frames = 4
side = "b"
`,
		},
		{
			name: "unaligned frame",
			contents: `
[[queue]]
id = 1
frame_size = 100
num_frames = 4
side = "a"
`,
		},
		{
			name: "no frames",
			contents: `
[[queue]]
id = 1
frame_size = 64
side = "a"
`,
		},
		{
			name: "bad side",
			contents: `
[[queue]]
id = 1
frame_size = 64
num_frames = 4
side = "left"
`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadTable(writeFile(t, tc.contents)); !errors.Is(err, linuxerr.EINVAL) {
				t.Errorf("LoadTable() = %v, want EINVAL", err)
			}
		})
	}

	if _, err := LoadTable(writeFile(t, "[[queue]\nid = ")); err == nil {
		t.Errorf("LoadTable() of malformed TOML succeeded")
	}
}

func TestLoadTableYAML(t *testing.T) {
	fromTOML, err := LoadTable(writeFile(t, testTable))
	if err != nil {
		t.Fatalf("LoadTable(toml) failed: %v", err)
	}
	fromYAML, err := LoadTable(writeNamedFile(t, "queues.yaml", testYAMLTable))
	if err != nil {
		t.Fatalf("LoadTable(yaml) failed: %v", err)
	}
	if diff := cmp.Diff(fromTOML, fromYAML); diff != "" {
		t.Errorf("YAML and TOML tables differ (-toml +yaml):\n%s", diff)
	}
}

func TestLoadTableUnknownKeys(t *testing.T) {
	const typo = `
[[queue]]
id = 1
frame_size = 64
num_frame = 4
side = "a"
`
	if _, err := LoadTable(writeFile(t, typo)); err == nil {
		t.Errorf("LoadTable() accepted an unknown TOML key")
	}
	const yamlTypo = `
queue:
  - id: 1
    frame_size: 64
    num_frames: 4
    sid: a
`
	if _, err := LoadTable(writeNamedFile(t, "queues.yml", yamlTypo)); err == nil {
		t.Errorf("LoadTable() accepted an unknown YAML key")
	}
}
