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

package config_test

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/blinklabs-io/goton/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = base64.StdEncoding.EncodeToString(make([]byte, ed25519.PublicKeySize))

func TestParse(t *testing.T) {
	cfg, err := config.Parse([]byte(`
kind: JRPC
endpoints:
  - " https://a.example/rpc "
  - ""
  - https://b.example/rpc
headers:
  X-Api-Key: secret
timeout: 5s
retries: 4
rotateAfter: 2
pollInterval: 500ms
maxPollInterval: 10s
requestsPerSecond: 20
`))
	require.NoError(t, err)
	assert.Equal(t, config.KindJsonRpc, cfg.Kind)
	assert.Equal(t, []string{"https://a.example/rpc", "https://b.example/rpc"}, cfg.Endpoints)
	assert.Equal(t, "secret", cfg.Headers["X-Api-Key"])
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.RotateAfter)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.MaxPollInterval)
	assert.Equal(t, 20.0, cfg.RequestsPerSecond)
	assert.Equal(t, 5, cfg.RetryPolicy().Attempts)
	// Unset fields keep their defaults
	assert.Equal(t, config.Default().KeepAlivePeriod, cfg.KeepAlivePeriod)
}

func TestParseAdnl(t *testing.T) {
	cfg, err := config.Parse([]byte(`
kind: adnl
peers:
  - address: 127.0.0.1:4924
    key: ` + testKey + `
keepAlivePeriod: 0s
`))
	require.NoError(t, err)
	require.Len(t, cfg.Peers, 1)
	key, err := cfg.Peers[0].PublicKey()
	require.NoError(t, err)
	assert.Len(t, key, ed25519.PublicKeySize)
	assert.Zero(t, cfg.KeepAlivePeriod)
}

func TestParseInvalid(t *testing.T) {
	testDefs := []struct {
		name string
		yaml string
	}{
		{name: "unknown field", yaml: "kind: graphql\nnetwork: mainnet\nbogus: 1\n"},
		{name: "unknown kind", yaml: "kind: carrier-pigeon\nendpoints: [x]\n"},
		{name: "no kind", yaml: "kind: \"\"\nendpoints: [x]\n"},
		{name: "no endpoints", yaml: "kind: graphql\n"},
		{name: "no peers", yaml: "kind: adnl\n"},
		{name: "bad peer key", yaml: "kind: adnl\npeers:\n  - address: a:1\n    key: AAAA\n"},
		{name: "peer without address", yaml: "kind: adnl\npeers:\n  - key: " + testKey + "\n"},
		{name: "negative timeout", yaml: "kind: graphql\nnetwork: mainnet\ntimeout: -1s\n"},
		{name: "negative retries", yaml: "kind: graphql\nnetwork: mainnet\nretries: -1\n"},
		{name: "poll bounds", yaml: "kind: graphql\nnetwork: mainnet\npollInterval: 10s\nmaxPollInterval: 1s\n"},
		{name: "malformed", yaml: "kind: [\n"},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			_, err := config.Parse([]byte(testDef.yaml))
			assert.Error(t, err)
		})
	}
}

func TestClone(t *testing.T) {
	cfg := config.Default()
	cfg.Endpoints = []string{"https://a.example"}
	cfg.Headers = map[string]string{"k": "v"}
	cfg.Peers = []config.Peer{{Address: "a:1", Key: testKey}}
	clone, err := cfg.Clone()
	require.NoError(t, err)
	assert.Equal(t, cfg, clone)

	cfg.Endpoints[0] = "https://changed.example"
	cfg.Headers["k"] = "changed"
	cfg.Peers[0].Address = "changed:1"
	assert.Equal(t, "https://a.example", clone.Endpoints[0])
	assert.Equal(t, "v", clone.Headers["k"])
	assert.Equal(t, "a:1", clone.Peers[0].Address)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Network = "testnet"
	data, err := cfg.Marshal()
	require.NoError(t, err)
	parsed, err := config.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}
