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

// Package config holds the static configuration of a transport and its YAML
// representation.
package config

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blinklabs-io/goton/protocol"
	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"
)

// Kind selects the transport backend
type Kind string

const (
	KindAdnl    Kind = "adnl"
	KindGraphQL Kind = "graphql"
	KindJsonRpc Kind = "jrpc"
)

var ErrInvalidConfig = errors.New("invalid config")

// Peer is a lite server address with its base64 encoded ed25519 public key
type Peer struct {
	Address string `yaml:"address"`
	Key     string `yaml:"key"`
}

// PublicKey decodes the peer key
func (p Peer) PublicKey() (ed25519.PublicKey, error) {
	key, err := base64.StdEncoding.DecodeString(p.Key)
	if err != nil {
		return nil, fmt.Errorf("peer %s: decode key: %w", p.Address, err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("peer %s: key is %d bytes, expected %d", p.Address, len(key), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(key), nil
}

// Config is the static configuration of a transport. It is copied when a
// transport is built, so later changes have no effect on it
type Config struct {
	Kind Kind `yaml:"kind"`
	// Network names a preset that supplies endpoints when none are given
	Network   string            `yaml:"network"`
	Endpoints []string          `yaml:"endpoints,omitempty"`
	Peers     []Peer            `yaml:"peers,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	// Timeout bounds a single request attempt
	Timeout time.Duration `yaml:"timeout"`
	// Retries is the number of attempts after the first one for network failures and timeouts
	Retries           int           `yaml:"retries"`
	RotateAfter       int           `yaml:"rotateAfter"`
	PollInterval      time.Duration `yaml:"pollInterval"`
	MaxPollInterval   time.Duration `yaml:"maxPollInterval"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	// KeepAlivePeriod is the lite-server ping interval. Zero disables keepalive
	KeepAlivePeriod time.Duration `yaml:"keepAlivePeriod"`
}

// Default returns a Config with default values and no endpoints
func Default() *Config {
	return &Config{
		Kind:            KindGraphQL,
		Timeout:         30 * time.Second,
		Retries:         protocol.DefaultRetryAttempts - 1,
		RotateAfter:     protocol.DefaultRotateAfter,
		PollInterval:    time.Second,
		MaxPollInterval: 30 * time.Second,
		KeepAlivePeriod: 30 * time.Second,
	}
}

// Parse decodes a YAML document over the defaults and validates the result.
// Unknown fields are an error
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Kind = Kind(strings.ToLower(strings.TrimSpace(string(c.Kind))))
	c.Network = strings.ToLower(strings.TrimSpace(c.Network))
	var endpoints []string
	for _, endpoint := range c.Endpoints {
		if trimmed := strings.TrimSpace(endpoint); trimmed != "" {
			endpoints = append(endpoints, trimmed)
		}
	}
	c.Endpoints = endpoints
	for i := range c.Peers {
		c.Peers[i].Address = strings.TrimSpace(c.Peers[i].Address)
		c.Peers[i].Key = strings.TrimSpace(c.Peers[i].Key)
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks the configuration for the selected kind
func (c *Config) Validate() error {
	if c == nil {
		return invalid("configuration is missing")
	}
	switch c.Kind {
	case KindAdnl:
		if len(c.Peers) == 0 {
			return invalid("kind %s requires at least one peer", c.Kind)
		}
		for _, peer := range c.Peers {
			if peer.Address == "" {
				return invalid("peer address is required")
			}
			if _, err := peer.PublicKey(); err != nil {
				return invalid("%s", err)
			}
		}
	case KindGraphQL, KindJsonRpc:
		if len(c.Endpoints) == 0 && c.Network == "" {
			return invalid("kind %s requires endpoints or a network", c.Kind)
		}
	case "":
		return invalid("kind is required")
	default:
		return invalid("unknown kind %q", c.Kind)
	}
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"timeout", c.Timeout},
		{"pollInterval", c.PollInterval},
		{"maxPollInterval", c.MaxPollInterval},
		{"keepAlivePeriod", c.KeepAlivePeriod},
	}
	for _, d := range durations {
		if d.value < 0 {
			return invalid("%s must not be negative", d.name)
		}
	}
	if c.MaxPollInterval > 0 && c.MaxPollInterval < c.PollInterval {
		return invalid("maxPollInterval is below pollInterval")
	}
	if c.Retries < 0 {
		return invalid("retries must not be negative")
	}
	if c.RotateAfter < 0 {
		return invalid("rotateAfter must not be negative")
	}
	if c.RequestsPerSecond < 0 {
		return invalid("requestsPerSecond must not be negative")
	}
	return nil
}

// Clone returns a deep copy
func (c *Config) Clone() (*Config, error) {
	ret := &Config{}
	if err := copier.CopyWithOption(ret, c, copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	return ret, nil
}

// RetryPolicy returns the retry policy for the configured number of retries
func (c *Config) RetryPolicy() protocol.RetryPolicy {
	ret := protocol.DefaultRetryPolicy()
	ret.Attempts = c.Retries + 1
	return ret
}

// Marshal encodes the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
