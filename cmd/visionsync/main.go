package main

import (
	"log/slog"
	"os"
	"visionsync-backend/cmd/visionsync/commands"
	"visionsync-backend/lib/serviceutil"

	"github.com/joho/godotenv"
)

func main() {
	// secrets may live in a .env next to the config
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "err", err)
	}
	commands.ExecuteContext(serviceutil.SignalContext())
}
