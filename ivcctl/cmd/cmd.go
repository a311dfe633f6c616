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

// Package cmd holds implementations of the ivcctl commands.
package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/tegra-ivc/ivc/ivcctl/config"
	"github.com/tegra-ivc/ivc/pkg/hvivc"
)

// parseID parses a queue id argument.
func parseID(arg string) (uint32, error) {
	id, err := strconv.ParseUint(arg, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid queue id %q: %w", arg, err)
	}
	return uint32(id), nil
}

// lookupQueue loads the queue table and returns the queue named by arg.
func lookupQueue(conf *config.Config, arg string) (hvivc.Queue, error) {
	id, err := parseID(arg)
	if err != nil {
		return hvivc.Queue{}, err
	}
	table, err := conf.Table()
	if err != nil {
		return hvivc.Queue{}, err
	}
	q, ok := table.Lookup(id)
	if !ok {
		return hvivc.Queue{}, fmt.Errorf("queue %d is not in %q", id, conf.Channels)
	}
	return q, nil
}

// openPool returns a Pool over the configured queue table, creating the root
// directory if needed. A non-empty side replaces the table's side for queue
// id.
func openPool(conf *config.Config, id uint32, side string) (*hvivc.Pool, error) {
	table, err := conf.Table()
	if err != nil {
		return nil, err
	}
	if side != "" {
		for i := range table.Queues {
			if table.Queues[i].ID == id {
				table.Queues[i].Side = side
			}
		}
	}
	if err := os.MkdirAll(conf.RootDir, 0755); err != nil {
		return nil, fmt.Errorf("creating root %q: %w", conf.RootDir, err)
	}
	return hvivc.NewPool(conf.RootDir, table, conf.Options())
}
