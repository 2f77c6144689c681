// Copyright 2026 Blink Labs Software
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

package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/goton"
	"github.com/spf13/cobra"
)

func newWatchCommand(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ADDRESS...",
		Short: "Print account states as they change, until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := parseAddresses(args)
			if err != nil {
				return err
			}
			t, err := f.newTransport(cmd)
			if err != nil {
				return err
			}
			defer t.Close()
			ctx := cmd.Context()
			var printMutex sync.Mutex
			var wg sync.WaitGroup
			errs := make([]error, len(addrs))
			for i, addr := range addrs {
				sub, err := t.Subscribe(ctx, addr)
				if err != nil {
					return err
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					for n := range sub.Notifications() {
						printMutex.Lock()
						err := printJson(
							cmd,
							newStateOutput(n.Address, goton.StateResult{State: n.State, Anomaly: n.Anomaly}),
						)
						printMutex.Unlock()
						if err != nil {
							errs[i] = err
							_ = sub.Close()
							return
						}
					}
					if err := sub.Err(); err != nil {
						slog.Error("subscription ended", "address", addr.String(), "error", err)
						errs[i] = err
					}
				}()
			}
			wg.Wait()
			if err := errors.Join(errs...); err != nil && !errors.Is(ctx.Err(), context.Canceled) {
				return err
			}
			return nil
		},
	}
}
