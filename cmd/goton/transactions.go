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
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/blinklabs-io/goton/ledger"
	"github.com/spf13/cobra"
)

type transactionOutput struct {
	Lt          string `json:"lt"`
	Hash        string `json:"hash"`
	PrevLt      string `json:"prevLt"`
	PrevHash    string `json:"prevHash"`
	Now         uint32 `json:"now"`
	OrigStatus  string `json:"origStatus"`
	EndStatus   string `json:"endStatus"`
	TotalFees   string `json:"totalFees"`
	OutMsgCount uint16 `json:"outMsgCount"`
}

type transactionsOutput struct {
	Transactions []transactionOutput `json:"transactions"`
	Next         string              `json:"next,omitempty"`
}

func newTransactionsCommand(f *globalFlags) *cobra.Command {
	var fromLt uint64
	var fromHash string
	var count int
	cmd := &cobra.Command{
		Use:   "transactions ADDRESS",
		Short: "Print a page of account history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := parseAddresses(args)
			if err != nil {
				return err
			}
			var from ledger.TransactionId
			if fromLt > 0 {
				hash, err := hex.DecodeString(fromHash)
				if err != nil || len(hash) != len(from.Hash) {
					return fmt.Errorf("--from-hash must be %d hex encoded bytes", len(from.Hash))
				}
				from.Lt = fromLt
				copy(from.Hash[:], hash)
			}
			t, err := f.newTransport(cmd)
			if err != nil {
				return err
			}
			defer t.Close()
			batch, err := t.GetTransactions(cmd.Context(), addrs[0], from, count)
			if err != nil {
				return err
			}
			ret := transactionsOutput{
				Transactions: make([]transactionOutput, 0, len(batch.Transactions)),
			}
			for _, tx := range batch.Transactions {
				hash := tx.Hash()
				ret.Transactions = append(
					ret.Transactions,
					transactionOutput{
						Lt:          strconv.FormatUint(tx.Lt, 10),
						Hash:        hex.EncodeToString(hash[:]),
						PrevLt:      strconv.FormatUint(tx.PrevTransLt, 10),
						PrevHash:    hex.EncodeToString(tx.PrevTransHash[:]),
						Now:         tx.Now,
						OrigStatus:  tx.OrigStatus.String(),
						EndStatus:   tx.EndStatus.String(),
						TotalFees:   tx.TotalFees.Dec(),
						OutMsgCount: tx.OutMsgCount,
					},
				)
			}
			if batch.Next != nil {
				ret.Next = batch.Next.String()
			}
			return printJson(cmd, ret)
		},
	}
	cmd.Flags().Uint64Var(&fromLt, "from-lt", 0, "logical time of the newest transaction to return (default latest)")
	cmd.Flags().StringVar(&fromHash, "from-hash", "", "hex hash of the transaction given by --from-lt")
	cmd.Flags().IntVar(&count, "count", 16, "maximum number of transactions")
	return cmd
}
