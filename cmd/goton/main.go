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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/goton"
	"github.com/blinklabs-io/goton/config"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configFile      string
	liteServersFile string
	kind            string
	network         string
	endpoints       []string
	timeout         time.Duration
	debug           bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		slog.Error(err.Error())
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	f := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "goton",
		Short:         "Query account state and relay messages over ADNL, GraphQL or JSON-RPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if f.debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(
				slog.New(
					slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
				),
			)
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&f.configFile, "config", "", "path to a YAML config file")
	flags.StringVar(
		&f.liteServersFile,
		"lite-servers",
		"",
		"path to a global config JSON file listing lite servers (implies --kind adnl)",
	)
	flags.StringVar(&f.kind, "kind", "", "backend kind: adnl, graphql or jrpc")
	flags.StringVar(&f.network, "network", "", "network preset supplying endpoints (mainnet or testnet)")
	flags.StringSliceVar(&f.endpoints, "endpoint", nil, "endpoint URL, may be repeated")
	flags.DurationVar(&f.timeout, "timeout", 0, "request timeout")
	flags.BoolVar(&f.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newStateCommand(f),
		newStatesCommand(f),
		newTransactionsCommand(f),
		newSendCommand(f),
		newWatchCommand(f),
	)
	return rootCmd
}

// loadConfig combines the config file with the command line flags, which take precedence
func (f *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		data, err := os.ReadFile(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg, err = config.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.configFile, err)
		}
	}
	if f.liteServersFile != "" {
		file, err := os.Open(f.liteServersFile)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		liteServers, err := goton.ParseLiteServers(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.liteServersFile, err)
		}
		cfg.Kind = config.KindAdnl
		cfg.Peers = liteServers.Peers()
	}
	if cmd.Flags().Changed("kind") {
		cfg.Kind = config.Kind(f.kind)
	}
	if cmd.Flags().Changed("network") {
		cfg.Network = f.network
	}
	if len(f.endpoints) > 0 {
		cfg.Endpoints = f.endpoints
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = f.timeout
	}
	return cfg, nil
}

func (f *globalFlags) newTransport(cmd *cobra.Command) (*goton.Transport, error) {
	cfg, err := f.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return goton.New(
		goton.WithConfig(cfg),
		goton.WithLogger(slog.Default()),
	)
}

func printJson(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
