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

package transport

import (
	"fmt"

	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/protocol"
)

// BuildTransactionsBatch checks that txs is a contiguous, newest-first chain
// starting at from and builds the page with the cursor for the next one. Any
// gap, duplicate or reordering is reported as a protocol error
func BuildTransactionsBatch(
	op string,
	endpoint string,
	from ledger.TransactionId,
	txs []*ledger.Transaction,
) (ledger.TransactionsBatch, error) {
	if len(txs) == 0 {
		return ledger.TransactionsBatch{}, nil
	}
	if !from.IsZero() && txs[0].Id() != from {
		return ledger.TransactionsBatch{}, protocol.ProtocolError(
			op,
			endpoint,
			fmt.Errorf("first transaction %s does not match requested %s", txs[0].Id(), from),
		)
	}
	for i := 1; i < len(txs); i++ {
		prev := txs[i-1]
		if txs[i].Account != prev.Account {
			return ledger.TransactionsBatch{}, protocol.ProtocolError(
				op,
				endpoint,
				fmt.Errorf("transaction %s belongs to another account", txs[i].Id()),
			)
		}
		if txs[i].Lt >= prev.Lt {
			return ledger.TransactionsBatch{}, protocol.ProtocolError(
				op,
				endpoint,
				fmt.Errorf("transaction lt %d is not below %d", txs[i].Lt, prev.Lt),
			)
		}
		if prev.PrevId() != txs[i].Id() {
			return ledger.TransactionsBatch{}, protocol.ProtocolError(
				op,
				endpoint,
				fmt.Errorf("history gap between %s and %s", prev.Id(), txs[i].Id()),
			)
		}
	}
	ret := ledger.TransactionsBatch{
		Transactions: txs,
	}
	last := txs[len(txs)-1]
	if last.PrevTransLt != 0 {
		next := last.PrevId()
		ret.Next = &next
	}
	return ret, nil
}
