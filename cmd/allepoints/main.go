package main

import (
	"context"

	"allepoints-backend/cmd/allepoints/commands"
	"allepoints-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "allepoints-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
