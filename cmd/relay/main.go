package main

import (
	"context"

	appRelay "git.mci.dev/mse/sre/phoenix/golang/relay/internal/app"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/prometheus"
	"go.uber.org/zap"
)

func main() {
	go prometheus.Run()

	for {
		ctx, cancel := context.WithCancel(context.Background())

		app, err := appRelay.NewApp(ctx, cancel)
		if err != nil {
			logging.Logger.Fatal("failed to create relay app", zap.String("error", err.Error()))
		}

		err = app.Run(ctx)
		if err != nil {
			panic(err)
		}

		<-ctx.Done()

		app.HealthCheckerService.Check()

		cancel()
	}
}
