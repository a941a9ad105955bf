package main

import (
	"os"

	"github.com/small-frappuccino/modcore/pkg/app"
	"github.com/small-frappuccino/modcore/pkg/log"
)

// main is the entry point of the moderation bot.
func main() {
	if err := app.Run("modcore"); err != nil {
		log.Error().Errorf("Fatal: %v", err)
		os.Exit(1)
	}
}
