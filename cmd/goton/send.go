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
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type sendOutput struct {
	MessageHash string    `json:"messageHash"`
	Endpoint    string    `json:"endpoint"`
	AcceptedAt  time.Time `json:"acceptedAt"`
}

func newSendCommand(f *globalFlags) *cobra.Command {
	var useBase64 bool
	cmd := &cobra.Command{
		Use:   "send FILE",
		Short: "Submit a serialized external message, reading stdin when FILE is -",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			if useBase64 {
				data, err = base64.StdEncoding.DecodeString(string(bytes.TrimSpace(data)))
				if err != nil {
					return err
				}
			}
			t, err := f.newTransport(cmd)
			if err != nil {
				return err
			}
			defer t.Close()
			ack, err := t.SendExternalMessage(cmd.Context(), data)
			if err != nil {
				return err
			}
			return printJson(
				cmd,
				sendOutput{
					MessageHash: hex.EncodeToString(ack.MessageHash[:]),
					Endpoint:    ack.Endpoint,
					AcceptedAt:  ack.AcceptedAt,
				},
			)
		},
	}
	cmd.Flags().BoolVar(&useBase64, "base64", false, "the input is base64 encoded")
	return cmd
}
