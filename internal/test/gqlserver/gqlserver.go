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

// Package gqlserver provides a GraphQL API backed by an in-memory chain for
// use in tests
package gqlserver

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/internal/test/chain"
	"github.com/blinklabs-io/goton/ledger"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
)

// Schema is the GraphQL schema served by Server
const Schema = `
schema {
  query: Query
  mutation: Mutation
}

type Query {
  blockchain: Blockchain!
}

type Mutation {
  postRequests(requests: [Request!]!): [String]
}

input Request {
  id: String!
  body: String!
}

type Blockchain {
  masterchainBlock: Block!
  account(address: String!): BlockchainAccountQuery!
}

type Block {
  seqno: Int!
  startLt: String!
  endLt: String!
  genUtime: Int!
}

type BlockchainAccountQuery {
  info: Account
  transactions(last: Int, before: String, fromLt: String): TransactionConnection!
}

type Account {
  id: String!
  boc: String!
  lastTransLt: String!
  balance: String!
}

type TransactionConnection {
  edges: [TransactionEdge!]!
  pageInfo: PageInfo!
}

type TransactionEdge {
  node: Transaction!
  cursor: String!
}

type Transaction {
  id: String!
  lt: String!
  boc: String!
}

type PageInfo {
  hasPreviousPage: Boolean!
  startCursor: String
}
`

const defaultPageSize = 50

// Server serves the GraphQL API over HTTP
type Server struct {
	*httptest.Server
	chain    *chain.Chain
	requests atomic.Int64
	cursors  atomic.Int64
}

// New starts a Server for c
func New(c *chain.Chain) *Server {
	s := &Server{chain: c}
	schema := graphql.MustParseSchema(Schema, &resolver{chain: c, cursors: &s.cursors})
	handler := &relay.Handler{Schema: schema}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		handler.ServeHTTP(w, r)
	}))
	return s
}

// Requests returns the number of requests served
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// CursorRequests returns the number of transaction pages requested with a cursor
func (s *Server) CursorRequests() int64 {
	return s.cursors.Load()
}

// Cursor returns the page cursor of a transaction
func Cursor(lt uint64) string {
	return base64.StdEncoding.EncodeToString([]byte("lt:" + strconv.FormatUint(lt, 10)))
}

func parseCursor(cursor string) (uint64, error) {
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, err
	}
	lt, ok := strings.CutPrefix(string(data), "lt:")
	if !ok {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	return strconv.ParseUint(lt, 10, 64)
}

type invalidMessageError struct {
	err error
}

func (e *invalidMessageError) Error() string {
	return e.err.Error()
}

func (e *invalidMessageError) Extensions() map[string]any {
	return map[string]any{"code": "INVALID_MESSAGE"}
}

type resolver struct {
	chain   *chain.Chain
	cursors *atomic.Int64
}

func (r *resolver) Blockchain() *blockchainResolver {
	return &blockchainResolver{chain: r.chain, cursors: r.cursors}
}

type requestInput struct {
	Id   string
	Body string
}

func (r *resolver) PostRequests(ctx context.Context, args struct{ Requests []requestInput }) (*[]*string, error) {
	ret := make([]*string, 0, len(args.Requests))
	for _, req := range args.Requests {
		body, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return nil, &invalidMessageError{err: err}
		}
		if err := r.chain.Submit(body); err != nil {
			return nil, &invalidMessageError{err: err}
		}
		id := req.Id
		ret = append(ret, &id)
	}
	return &ret, nil
}

type blockchainResolver struct {
	chain   *chain.Chain
	cursors *atomic.Int64
}

func (r *blockchainResolver) MasterchainBlock() *blockResolver {
	return &blockResolver{snap: r.chain.Snapshot(address.Address{})}
}

func (r *blockchainResolver) Account(args struct{ Address string }) (*accountQueryResolver, error) {
	addr, err := address.Parse(args.Address)
	if err != nil {
		return nil, err
	}
	return &accountQueryResolver{chain: r.chain, addr: addr, cursors: r.cursors}, nil
}

type blockResolver struct {
	snap chain.Snapshot
}

func (r *blockResolver) Seqno() int32 {
	return int32(r.snap.Seqno)
}

func (r *blockResolver) StartLt() string {
	return strconv.FormatUint(r.snap.GenLt-r.snap.GenLt%1000, 10)
}

func (r *blockResolver) EndLt() string {
	return strconv.FormatUint(r.snap.GenLt, 10)
}

func (r *blockResolver) GenUtime() int32 {
	return int32(r.snap.GenUtime)
}

type accountQueryResolver struct {
	chain   *chain.Chain
	addr    address.Address
	cursors *atomic.Int64
}

func (r *accountQueryResolver) Info() (*accountResolver, error) {
	snap := r.chain.Snapshot(r.addr)
	if snap.Boc == nil {
		return nil, nil
	}
	rec, err := ledger.NewAccountRecordFromBoc(snap.Boc)
	if err != nil {
		return nil, err
	}
	return &accountResolver{addr: r.addr, snap: snap, balance: rec.Balance.Dec()}, nil
}

type transactionsArgs struct {
	Last   *int32
	Before *string
	FromLt *string
}

func (r *accountQueryResolver) Transactions(args transactionsArgs) (*connectionResolver, error) {
	all, err := r.chain.Transactions(r.addr, ledger.TransactionId{}, 1<<20)
	if err != nil {
		return nil, err
	}
	limit := defaultPageSize
	if args.Last != nil {
		if *args.Last < 0 {
			return nil, errors.New("last must not be negative")
		}
		limit = int(*args.Last)
	}
	upper := uint64(1<<64 - 1)
	if args.Before != nil {
		r.cursors.Add(1)
		lt, err := parseCursor(*args.Before)
		if err != nil {
			return nil, err
		}
		// before is exclusive
		upper = lt - 1
	}
	if args.FromLt != nil {
		lt, err := strconv.ParseUint(*args.FromLt, 10, 64)
		if err != nil {
			return nil, err
		}
		upper = min(upper, lt)
	}
	// all is newest first
	var matching []*ledger.Transaction
	for _, tx := range all {
		if tx.Lt <= upper {
			matching = append(matching, tx)
		}
	}
	page := matching[:min(limit, len(matching))]
	ret := &connectionResolver{hasPrevious: len(matching) > len(page)}
	for i := len(page) - 1; i >= 0; i-- {
		ret.edges = append(ret.edges, &edgeResolver{tx: page[i]})
	}
	return ret, nil
}

type accountResolver struct {
	addr    address.Address
	snap    chain.Snapshot
	balance string
}

func (r *accountResolver) Id() string {
	return r.addr.String()
}

func (r *accountResolver) Boc() string {
	return base64.StdEncoding.EncodeToString(r.snap.Boc)
}

func (r *accountResolver) LastTransLt() string {
	return strconv.FormatUint(r.snap.LastTransLt, 10)
}

func (r *accountResolver) Balance() string {
	return r.balance
}

type connectionResolver struct {
	edges       []*edgeResolver
	hasPrevious bool
}

func (r *connectionResolver) Edges() []*edgeResolver {
	return r.edges
}

func (r *connectionResolver) PageInfo() *pageInfoResolver {
	ret := &pageInfoResolver{hasPrevious: r.hasPrevious}
	if len(r.edges) > 0 {
		cursor := r.edges[0].Cursor()
		ret.startCursor = &cursor
	}
	return ret
}

type edgeResolver struct {
	tx *ledger.Transaction
}

func (r *edgeResolver) Node() *transactionResolver {
	return &transactionResolver{tx: r.tx}
}

func (r *edgeResolver) Cursor() string {
	return Cursor(r.tx.Lt)
}

type transactionResolver struct {
	tx *ledger.Transaction
}

func (r *transactionResolver) Id() string {
	hash := r.tx.Hash()
	return hex.EncodeToString(hash[:])
}

func (r *transactionResolver) Lt() string {
	return strconv.FormatUint(r.tx.Lt, 10)
}

func (r *transactionResolver) Boc() string {
	return base64.StdEncoding.EncodeToString(r.tx.Bytes())
}

type pageInfoResolver struct {
	hasPrevious bool
	startCursor *string
}

func (r *pageInfoResolver) HasPreviousPage() bool {
	return r.hasPrevious
}

func (r *pageInfoResolver) StartCursor() *string {
	return r.startCursor
}
