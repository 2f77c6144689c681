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
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/blinklabs-io/goton/config"
)

// LiteServerConfig represents the lite server section of a network global config
type LiteServerConfig struct {
	LiteServers []LiteServer `json:"liteservers"`
}

// LiteServer is a single lite server entry. The IP is a signed 32-bit
// integer holding the IPv4 address in network byte order
type LiteServer struct {
	IP   int32         `json:"ip"`
	Port uint16        `json:"port"`
	Id   LiteServerKey `json:"id"`
}

type LiteServerKey struct {
	Type string `json:"@type"`
	Key  string `json:"key"`
}

// Address returns the host:port form of the server address
func (s LiteServer) Address() string {
	ip := uint32(s.IP)
	return net.JoinHostPort(
		net.IPv4(byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip)).String(),
		strconv.Itoa(int(s.Port)),
	)
}

// ParseLiteServers decodes the lite server list of a global config
func ParseLiteServers(r io.Reader) (*LiteServerConfig, error) {
	c := &LiteServerConfig{}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if len(c.LiteServers) == 0 {
		return nil, errors.New("no lite servers found")
	}
	for i, server := range c.LiteServers {
		if server.Id.Type != "" && server.Id.Type != "pub.ed25519" {
			return nil, fmt.Errorf("lite server %d: unsupported key type %q", i, server.Id.Type)
		}
		if _, err := base64.StdEncoding.DecodeString(server.Id.Key); err != nil {
			return nil, fmt.Errorf("lite server %d: decode key: %w", i, err)
		}
	}
	return c, nil
}

// Peers converts the lite server list into configured peers
func (c *LiteServerConfig) Peers() []config.Peer {
	ret := make([]config.Peer, 0, len(c.LiteServers))
	for _, server := range c.LiteServers {
		ret = append(
			ret,
			config.Peer{
				Address: server.Address(),
				Key:     server.Id.Key,
			},
		)
	}
	return ret
}
