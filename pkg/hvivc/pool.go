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
	"sync"

	"github.com/tegra-ivc/ivc/pkg/errors/linuxerr"
	"github.com/tegra-ivc/ivc/pkg/ivcmem"
	"github.com/tegra-ivc/ivc/pkg/log"
)

// Pool hands out the channels of a queue table. Each queue is backed by a
// file under the pool root and may be reserved by one Cookie at a time.
type Pool struct {
	root  string
	table *Table
	opts  Options

	mu       sync.Mutex
	reserved map[uint32]*Cookie
	closed   bool
}

// NewPool returns a Pool over the queues of table. table is copied.
func NewPool(root string, table *Table, opts Options) (*Pool, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Pool{
		root:     root,
		table:    table.Copy(),
		opts:     opts.withDefaults(),
		reserved: make(map[uint32]*Cookie),
	}, nil
}

// Queues returns a copy of the pool's table.
func (p *Pool) Queues() *Table {
	return p.table.Copy()
}

// Reserve maps the queue with the given id and returns a Cookie for it. It
// returns ENOENT if there is no such queue and EBUSY if it is already
// reserved.
func (p *Pool) Reserve(id uint32) (*Cookie, error) {
	q, ok := p.table.Lookup(id)
	if !ok {
		return nil, linuxerr.Wrapf(linuxerr.ENOENT, "no queue with id %d", id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, linuxerr.Wrapf(linuxerr.EINVAL, "pool is closed")
	}
	if _, ok := p.reserved[id]; ok {
		return nil, linuxerr.Wrapf(linuxerr.EBUSY, "queue %d is already reserved", id)
	}

	side, err := ivcmem.ParseSide(q.Side)
	if err != nil {
		return nil, err
	}
	path := q.ResolvePath(p.root)
	r, err := ivcmem.OpenFile(path, q.NumFrames, q.FrameSize)
	if err != nil {
		return nil, fmt.Errorf("opening queue %d: %w", id, err)
	}
	ch, err := r.Channel(side, nil)
	if err != nil {
		r.Unmap()
		return nil, fmt.Errorf("queue %d: %w", id, err)
	}

	c := NewCookie(id, ch, nil, p.opts)
	c.release = r.Unmap
	p.reserved[id] = c
	log.Infof("hvivc: reserved queue %d (%s) at %q as side %v", id, q.Name, path, side)
	return c, nil
}

// Unreserve releases c. It returns EINVAL if c is not reserved from p.
func (p *Pool) Unreserve(c *Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reserved[c.id] != c {
		return linuxerr.Wrapf(linuxerr.EINVAL, "queue %d is not reserved by this cookie", c.id)
	}
	delete(p.reserved, c.id)
	return c.unmap()
}

// Close releases every reserved queue. The pool can't be used afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for id, c := range p.reserved {
		if err := c.unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.reserved, id)
	}
	p.closed = true
	return firstErr
}

// unmap releases the cookie's memory. Concurrent and later operations on c
// fail with EINVAL instead of touching the unmapped channel.
func (c *Cookie) unmap() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	if c.release == nil {
		return nil
	}
	err := c.release()
	c.release = nil
	return err
}
