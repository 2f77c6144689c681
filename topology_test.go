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

package goton_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/blinklabs-io/goton"
	"github.com/blinklabs-io/goton/config"
	"github.com/blinklabs-io/goton/internal/test"
)

const testLiteServerKey = "n4VDnSCUuSpjnCyUk9e3QOOd6o0ItSWYbTnW3Wnn8wk="

type topologyTestDefinition struct {
	jsonData       string
	expectedObject *goton.LiteServerConfig
	expectedPeers  []config.Peer
}

var topologyTests = []topologyTestDefinition{
	{
		jsonData: `
{
  "@type": "config.global",
  "liteservers": [
    {
      "ip": 84478511,
      "port": 19949,
      "id": {
        "@type": "pub.ed25519",
        "key": "n4VDnSCUuSpjnCyUk9e3QOOd6o0ItSWYbTnW3Wnn8wk="
      }
    }
  ]
}
`,
		expectedObject: &goton.LiteServerConfig{
			LiteServers: []goton.LiteServer{
				{
					IP:   84478511,
					Port: 19949,
					Id: goton.LiteServerKey{
						Type: "pub.ed25519",
						Key:  testLiteServerKey,
					},
				},
			},
		},
		expectedPeers: []config.Peer{
			{Address: "5.9.10.47:19949", Key: testLiteServerKey},
		},
	},
	{
		jsonData: `
{
  "liteservers": [
    {
      "ip": -1468121405,
      "port": 30131,
      "id": {
        "key": "n4VDnSCUuSpjnCyUk9e3QOOd6o0ItSWYbTnW3Wnn8wk="
      }
    },
    {
      "ip": 2130706433,
      "port": 4924,
      "id": {
        "@type": "pub.ed25519",
        "key": "n4VDnSCUuSpjnCyUk9e3QOOd6o0ItSWYbTnW3Wnn8wk="
      }
    }
  ]
}
`,
		expectedObject: &goton.LiteServerConfig{
			LiteServers: []goton.LiteServer{
				{
					IP:   -1468121405,
					Port: 30131,
					Id:   goton.LiteServerKey{Key: testLiteServerKey},
				},
				{
					IP:   2130706433,
					Port: 4924,
					Id: goton.LiteServerKey{
						Type: "pub.ed25519",
						Key:  testLiteServerKey,
					},
				},
			},
		},
		expectedPeers: []config.Peer{
			{Address: "168.126.62.195:30131", Key: testLiteServerKey},
			{Address: "127.0.0.1:4924", Key: testLiteServerKey},
		},
	},
}

func TestParseLiteServers(t *testing.T) {
	for _, testDef := range topologyTests {
		liteServers, err := goton.ParseLiteServers(
			strings.NewReader(testDef.jsonData),
		)
		if err != nil {
			t.Fatalf("failed to load LiteServerConfig from JSON data: %s", err)
		}
		if !reflect.DeepEqual(liteServers, testDef.expectedObject) {
			t.Fatalf(
				"did not get expected object\n  got:\n    %#v\n  wanted:\n    %#v",
				liteServers,
				testDef.expectedObject,
			)
		}
		peers := liteServers.Peers()
		if !reflect.DeepEqual(peers, testDef.expectedPeers) {
			t.Fatalf("did not get expected peers\n  got: %#v\n  wanted: %#v", peers, testDef.expectedPeers)
		}
		for _, peer := range peers {
			key, err := peer.PublicKey()
			if err != nil {
				t.Fatalf("unexpected error decoding peer key: %s", err)
			}
			if !reflect.DeepEqual([]byte(key), test.DecodeBase64String(testLiteServerKey)) {
				t.Fatalf("peer key mismatch for %s", peer.Address)
			}
		}
	}
}

func TestParseLiteServersInvalid(t *testing.T) {
	invalid := []string{
		`{"liteservers": []}`,
		`{"liteservers": [{"ip": 1, "port": 1, "id": {"@type": "pub.aes", "key": "AAAA"}}]}`,
		`{"liteservers": [{"ip": 1, "port": 1, "id": {"key": "not base64!"}}]}`,
		`{"liteservers": [{"ip": 1, "port": 70000, "id": {"key": "AAAA"}}]}`,
		`not json`,
	}
	for _, jsonData := range invalid {
		if _, err := goton.ParseLiteServers(strings.NewReader(jsonData)); err == nil {
			t.Fatalf("expected error for %s", jsonData)
		}
	}
}

func TestNetworkByName(t *testing.T) {
	mainnet := goton.NetworkByName("mainnet")
	if mainnet.Name != goton.NetworkMainnet.Name {
		t.Fatalf("unexpected network: %s", mainnet)
	}
	endpoints := mainnet.Endpoints(config.KindGraphQL)
	if !reflect.DeepEqual(endpoints, []string{"https://main.ton.dev/graphql"}) {
		t.Fatalf("unexpected endpoints: %v", endpoints)
	}
	// Returned slices are copies
	endpoints[0] = "changed"
	if goton.NetworkMainnet.GraphQLEndpoints[0] == "changed" {
		t.Fatalf("preset endpoints were modified")
	}
	if len(mainnet.Endpoints(config.KindAdnl)) != 0 {
		t.Fatalf("expected no adnl endpoints")
	}
	if goton.NetworkByName("devnet").String() != "invalid" {
		t.Fatalf("expected invalid network")
	}
}
