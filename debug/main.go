package main

import (
	"os"

	"github.com/emrgen/docrender/internal/config"
	"github.com/emrgen/docrender/internal/server"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.LoadConfig()
	logrus.SetLevel(logrus.DebugLevel)

	if os.Getenv("GRPC_PORT") == "" {
		cfg.GrpcPort = "4000"
	}
	if os.Getenv("HTTP_PORT") == "" {
		cfg.HttpPort = "4001"
	}

	err := server.Start(cfg, server.NewNullTokenVerifier())
	if err != nil {
		logrus.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
}
