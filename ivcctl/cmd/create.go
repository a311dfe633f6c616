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

package cmd

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/tegra-ivc/ivc/ivcctl/cmd/util"
	"github.com/tegra-ivc/ivc/ivcctl/config"
	"github.com/tegra-ivc/ivc/pkg/hvivc"
	"github.com/tegra-ivc/ivc/pkg/ivcmem"
)

// Create implements subcommands.Command for the "create" command.
type Create struct {
	all bool
}

// Name implements subcommands.Command.Name.
func (*Create) Name() string {
	return "create"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Create) Synopsis() string {
	return "create the shared memory backing a queue, discarding its contents"
}

// Usage implements subcommands.Command.Usage.
func (*Create) Usage() string {
	return `create [flags] <queue id> | -all - create zero-filled queue regions under --root
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Create) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.all, "all", false, "create every queue in the table.")
}

// Execute implements subcommands.Command.Execute.
func (c *Create) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if (c.all && f.NArg() != 0) || (!c.all && f.NArg() != 1) {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	var queues []hvivc.Queue
	if c.all {
		table, err := conf.Table()
		if err != nil {
			return util.Errorf("create: %v", err)
		}
		queues = table.Copy().Queues
	} else {
		q, err := lookupQueue(conf, f.Arg(0))
		if err != nil {
			return util.Errorf("create: %v", err)
		}
		queues = []hvivc.Queue{q}
	}

	if err := os.MkdirAll(conf.RootDir, 0755); err != nil {
		return util.Errorf("create: %v", err)
	}
	for _, q := range queues {
		path := q.ResolvePath(conf.RootDir)
		if err := ivcmem.Create(path, q.NumFrames, q.FrameSize); err != nil {
			return util.Errorf("create queue %d at %q: %v", q.ID, path, err)
		}
		util.Infof("queue %d (%s): %d frames of %d bytes at %s", q.ID, q.Name, q.NumFrames, q.FrameSize, path)
	}
	return subcommands.ExitSuccess
}
