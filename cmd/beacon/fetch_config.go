package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/beacon/pkg/remoteconfig"
)

// fetchResult is printed by fetch-config.
type fetchResult struct {
	URL    string                           `json:"url"`
	Config bool                             `json:"config"`
	Items  []remoteconfig.InteractionConfig `json:"items"`
}

func newFetchConfigCmd() *cobra.Command {
	var (
		timeout time.Duration
		maxBody int64
	)

	cmd := &cobra.Command{
		Use:   "fetch-config <url>",
		Short: "Fetch the remote interaction config once and print it",
		Long: `Fetch the remote interaction config once and print the result as JSON.

"config": false means the endpoint returned no config (non-2xx status, a
server-reported error, or a null data field). Transport and decode errors
exit non-zero.

Examples:
  beacon fetch-config https://config.example.com/v1/interactions
  beacon fetch-config --timeout 2s http://localhost:8080/config.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return fetchConfig(ctx, cmd, args[0], maxBody)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	cmd.Flags().Int64Var(&maxBody, "max-body", remoteconfig.DefaultMaxBodyBytes, "maximum response body size in bytes")
	return cmd
}

func fetchConfig(ctx context.Context, cmd *cobra.Command, url string, maxBody int64) error {
	source := remoteconfig.NewHTTPSource[remoteconfig.InteractionConfig](
		func() string { return url },
		remoteconfig.WithMaxBodyBytes(maxBody),
	)

	items, ok, err := source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching config: %w", err)
	}

	res := fetchResult{URL: url, Config: ok, Items: items}
	if res.Items == nil {
		res.Items = []remoteconfig.InteractionConfig{}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
