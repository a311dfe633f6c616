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
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"github.com/tegra-ivc/ivc/pkg/errors/linuxerr"
	"github.com/tegra-ivc/ivc/pkg/ivc"
	"github.com/tegra-ivc/ivc/pkg/ivcmem"
	yaml "gopkg.in/yaml.v2"
)

// Queue describes one channel of a Pool, as a hypervisor would advertise it.
type Queue struct {
	// ID identifies the queue in Reserve.
	ID uint32 `toml:"id" yaml:"id" json:"id"`

	// Name is a human-readable label. If Path is empty, it also names the
	// backing file under the pool root.
	Name string `toml:"name" yaml:"name" json:"name"`

	// FrameSize and NumFrames are the channel geometry.
	FrameSize uint32 `toml:"frame_size" yaml:"frame_size" json:"frame_size"`
	NumFrames uint32 `toml:"num_frames" yaml:"num_frames" json:"num_frames"`

	// Path is the backing file. Relative paths are resolved against the
	// pool root.
	Path string `toml:"path" yaml:"path,omitempty" json:"path,omitempty"`

	// Side is the end of the channel this process takes: "a" or "b".
	Side string `toml:"side" yaml:"side" json:"side"`
}

// ResolvePath returns the backing file of q under root.
func (q *Queue) ResolvePath(root string) string {
	p := q.Path
	if p == "" {
		p = q.Name
	}
	if p == "" {
		p = fmt.Sprintf("ivc%d", q.ID)
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Table is the set of queues available to a Pool.
type Table struct {
	Queues []Queue `toml:"queue" yaml:"queue" json:"queues"`
}

// LoadTable loads a queue table. Files ending in .yaml or .yml are parsed
// as YAML, anything else as TOML of the form:
//
//	[[queue]]
//	id = 0
//	name = "vblk0"
//	frame_size = 128
//	num_frames = 16
//	side = "a"
func LoadTable(path string) (*Table, error) {
	var t Table
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.SetStrict(true)
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("parsing queue table %q: %w", path, err)
		}
	default:
		md, err := toml.DecodeFile(path, &t)
		if err != nil {
			return nil, fmt.Errorf("parsing queue table %q: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("queue table %q: unknown keys %v", path, undecoded)
		}
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("queue table %q: %w", path, err)
	}
	return &t, nil
}

// Validate checks that IDs are unique, geometry is valid, and sides parse.
func (t *Table) Validate() error {
	seen := make(map[uint32]struct{}, len(t.Queues))
	for i := range t.Queues {
		q := &t.Queues[i]
		if _, ok := seen[q.ID]; ok {
			return linuxerr.Wrapf(linuxerr.EINVAL, "duplicate queue id %d", q.ID)
		}
		seen[q.ID] = struct{}{}
		if _, err := ivc.QueueSize(q.NumFrames, q.FrameSize); err != nil {
			return fmt.Errorf("queue %d: %w", q.ID, err)
		}
		if _, err := ivcmem.ParseSide(q.Side); err != nil {
			return fmt.Errorf("queue %d: %w", q.ID, err)
		}
	}
	return nil
}

// Lookup returns the queue with the given id.
func (t *Table) Lookup(id uint32) (Queue, bool) {
	for _, q := range t.Queues {
		if q.ID == id {
			return q, true
		}
	}
	return Queue{}, false
}

// Copy returns a deep copy of t, sorted by ID.
func (t *Table) Copy() *Table {
	c := deepcopy.Copy(t).(*Table)
	sort.Slice(c.Queues, func(i, j int) bool { return c.Queues[i].ID < c.Queues[j].ID })
	return c
}
