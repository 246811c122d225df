package main

import (
	"context"
	"log/slog"
	"os"

	"allepoints-backend/lib/serviceutil"
	"allepoints-backend/lib/telemetry"
)

func InitTelemetry(ctx context.Context, verbose bool) {
	telemetry.InitSlog(verbose)

	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	t, err := telemetry.SetupFromEnv(ctx, "allepointsd")
	if os.IsNotExist(err) {
		slog.Warn("no telemetry.json5 found, telemetry disabled")
		return
	}
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	go func() {
		<-ctx.Done()
		t.Shutdown(context.Background())
	}()
	telemetry.InstrumentPerfStats(ctx)
}
