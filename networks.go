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

package goton

import (
	"time"

	"github.com/blinklabs-io/goton/config"
)

// Network definitions
var (
	NetworkMainnet = Network{
		Name:             "mainnet",
		GraphQLEndpoints: []string{"https://main.ton.dev/graphql"},
		Timeout:          60 * time.Second,
	}
	NetworkTestnet = Network{
		Name:             "testnet",
		GraphQLEndpoints: []string{"https://net.ton.dev/graphql"},
		Timeout:          60 * time.Second,
	}

	NetworkInvalid = Network{
		Name: "invalid",
	} // NetworkInvalid is used as a return value for lookup functions when a network isn't found
)

// List of valid networks for use in lookup functions
var networks = []Network{
	NetworkMainnet,
	NetworkTestnet,
}

// NetworkByName returns a predefined network by name
func NetworkByName(name string) Network {
	for _, network := range networks {
		if network.Name == name {
			return network
		}
	}
	return NetworkInvalid
}

// Network is a named set of public endpoints
type Network struct {
	Name             string
	GraphQLEndpoints []string
	JsonRpcEndpoints []string
	// Timeout is the request timeout used with the preset endpoints
	Timeout time.Duration
}

// Endpoints returns the preset endpoints for a backend kind
func (n Network) Endpoints(kind config.Kind) []string {
	var src []string
	switch kind {
	case config.KindGraphQL:
		src = n.GraphQLEndpoints
	case config.KindJsonRpc:
		src = n.JsonRpcEndpoints
	}
	if len(src) == 0 {
		return nil
	}
	ret := make([]string, len(src))
	copy(ret, src)
	return ret
}

func (n Network) String() string {
	return n.Name
}
