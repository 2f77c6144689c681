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

package gql

import (
	"fmt"
	"strings"
)

const accountFields = `info { id boc lastTransLt }`

const blockFields = `masterchainBlock { seqno endLt genUtime }`

const accountStateQuery = `query accountState($address: String!) {
  blockchain {
    ` + blockFields + `
    account(address: $address) { ` + accountFields + ` }
  }
}`

const transactionsQuery = `query transactions($address: String!, $last: Int!, $before: String, $fromLt: String) {
  blockchain {
    account(address: $address) {
      transactions(last: $last, before: $before, fromLt: $fromLt) {
        edges { node { id lt boc } cursor }
        pageInfo { hasPreviousPage startCursor }
      }
    }
  }
}`

const postRequestsMutation = `mutation postRequests($requests: [Request!]!) {
  postRequests(requests: $requests)
}`

func accountAlias(i int) string {
	return fmt.Sprintf("a%d", i)
}

// accountStatesQuery builds a single document reading several accounts
// against the same masterchain block, one alias per account
func accountStatesQuery(count int) string {
	var sb strings.Builder
	sb.WriteString("query accountStates(")
	for i := 0; i < count; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "$%s: String!", accountAlias(i))
	}
	sb.WriteString(") {\n  blockchain {\n    ")
	sb.WriteString(blockFields)
	sb.WriteString("\n")
	for i := 0; i < count; i++ {
		alias := accountAlias(i)
		fmt.Fprintf(&sb, "    %s: account(address: $%s) { %s }\n", alias, alias, accountFields)
	}
	sb.WriteString("  }\n}")
	return sb.String()
}

type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type responseError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type blockData struct {
	Seqno    uint32 `json:"seqno"`
	EndLt    string `json:"endLt"`
	GenUtime uint32 `json:"genUtime"`
}

type accountInfo struct {
	Id          string `json:"id"`
	Boc         string `json:"boc"`
	LastTransLt string `json:"lastTransLt"`
}

type accountData struct {
	Info *accountInfo `json:"info"`
}

type accountStateData struct {
	Blockchain struct {
		MasterchainBlock blockData   `json:"masterchainBlock"`
		Account          accountData `json:"account"`
	} `json:"blockchain"`
}

type transactionNode struct {
	Id  string `json:"id"`
	Lt  string `json:"lt"`
	Boc string `json:"boc"`
}

type transactionEdge struct {
	Node   transactionNode `json:"node"`
	Cursor string          `json:"cursor"`
}

type transactionsData struct {
	Blockchain struct {
		Account struct {
			Transactions struct {
				Edges    []transactionEdge `json:"edges"`
				PageInfo struct {
					HasPreviousPage bool   `json:"hasPreviousPage"`
					StartCursor     string `json:"startCursor"`
				} `json:"pageInfo"`
			} `json:"transactions"`
		} `json:"account"`
	} `json:"blockchain"`
}

type messageRequest struct {
	Id   string `json:"id"`
	Body string `json:"body"`
}

type postRequestsData struct {
	PostRequests []*string `json:"postRequests"`
}
