package cmd

import (
	"context"
	"fmt"

	"github.com/matheuscscp/radio-sim/config"
	"github.com/matheuscscp/radio-sim/node"
	"github.com/matheuscscp/radio-sim/sensor"

	"github.com/spf13/cobra"
)

var responderCmd = &cobra.Command{
	Use:   "responder <yaml-config-file>",
	Short: "Run the responder node of the sensor exchange",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// read config
		var conf struct {
			Node            node.Config                       `yaml:"node"`
			Sensor          sensor.SimulatedTemperatureConfig `yaml:"sensor"`
			MetricsEndpoint string                            `yaml:"metricsEndpoint"`
		}
		if err := config.ReadYAMLFileAndUnmarshal(args[0], &conf); err != nil {
			return fmt.Errorf("error reading yaml responder config file: %w", err)
		}
		conf.Node.Role = node.RoleResponder

		// create sensor
		sens, err := sensor.NewSimulatedTemperature(conf.Sensor)
		if err != nil {
			return fmt.Errorf("error creating sensor: %w", err)
		}

		// run node with cancel on interruption signals
		ctx, cancel := contextWithCancelOnInterrupt(context.Background())
		defer cancel()
		listenMetrics(ctx, conf.MetricsEndpoint)
		return node.Run(ctx, conf.Node, nil, sens)
	},
}

func init() {
	rootCmd.AddCommand(responderCmd)
}
