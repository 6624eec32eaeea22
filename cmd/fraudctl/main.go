package main

import (
	"context"
	"os"

	"github.com/example/transit-fraud/internal/app"
	"github.com/example/transit-fraud/internal/config"
	"github.com/example/transit-fraud/internal/logging"
)

func main() {
	root := newRootCmd(func(ctx context.Context) (*app.Stores, error) {
		cfg, err := config.LoadServerConfig()
		if err != nil {
			return nil, err
		}
		return app.OpenStores(ctx, cfg.Stores, logging.NewLoggerTo(os.Stderr, cfg.LogLevel))
	})
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
