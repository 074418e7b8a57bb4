package cmd

import (
	"github.com/emrgen/docrender/internal/config"
	"github.com/emrgen/docrender/internal/server"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var grpcPort string
	var httpPort string

	command := &cobra.Command{
		Use:   "serve",
		Short: "start the grpc and rest servers",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.LoadConfig()
			if grpcPort != "" {
				cfg.GrpcPort = grpcPort
			}
			if httpPort != "" {
				cfg.HttpPort = httpPort
			}

			server.NewServer(cfg).Start()
		},
	}

	command.Flags().StringVar(&grpcPort, "grpc-port", "", "grpc port (default from GRPC_PORT)")
	command.Flags().StringVar(&httpPort, "http-port", "", "http port (default from HTTP_PORT)")

	return command
}
