package cmd

import (
	"context"
	"fmt"

	"github.com/matheuscscp/radio-sim/config"
	"github.com/matheuscscp/radio-sim/node"

	"github.com/spf13/cobra"
)

var requesterCmd = &cobra.Command{
	Use:   "requester <yaml-config-file>",
	Short: "Run the requester node of the sensor exchange",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// read config
		var conf struct {
			Node            node.Config `yaml:"node"`
			MetricsEndpoint string      `yaml:"metricsEndpoint"`
		}
		if err := config.ReadYAMLFileAndUnmarshal(args[0], &conf); err != nil {
			return fmt.Errorf("error reading yaml requester config file: %w", err)
		}
		conf.Node.Role = node.RoleRequester

		// run node with cancel on interruption signals
		ctx, cancel := contextWithCancelOnInterrupt(context.Background())
		defer cancel()
		listenMetrics(ctx, conf.MetricsEndpoint)
		return node.Run(ctx, conf.Node, nil, nil)
	},
}

func init() {
	rootCmd.AddCommand(requesterCmd)
}
