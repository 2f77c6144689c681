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
	"github.com/blinklabs-io/goton"
	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/spf13/cobra"
)

type stateOutput struct {
	Address string                    `json:"address"`
	State   *ledger.FullContractState `json:"state"`
	Anomaly string                    `json:"anomaly,omitempty"`
}

func newStateOutput(addr address.Address, res goton.StateResult) stateOutput {
	ret := stateOutput{
		Address: addr.String(),
		State:   res.Full(),
	}
	if res.Anomaly != nil {
		ret.Anomaly = res.Anomaly.Error()
	}
	return ret
}

func parseAddresses(args []string) ([]address.Address, error) {
	ret := make([]address.Address, 0, len(args))
	for _, arg := range args {
		addr, err := address.Parse(arg)
		if err != nil {
			return nil, err
		}
		ret = append(ret, addr)
	}
	return ret, nil
}

func newStateCommand(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "state ADDRESS",
		Short: "Print the current state of an account",
		Args:  cobra.ExactArgs(1),
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
			res, err := t.GetContractState(cmd.Context(), addrs[0])
			if err != nil {
				return err
			}
			return printJson(cmd, newStateOutput(addrs[0], res))
		},
	}
}

func newStatesCommand(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "states ADDRESS...",
		Short: "Print the current states of several accounts",
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
			results, err := t.GetContractStates(cmd.Context(), addrs)
			if err != nil {
				return err
			}
			ret := make([]stateOutput, 0, len(results))
			for i, res := range results {
				ret = append(ret, newStateOutput(addrs[i], res))
			}
			return printJson(cmd, ret)
		},
	}
}
