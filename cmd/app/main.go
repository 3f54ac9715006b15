package main

import (
	"log"

	"go.uber.org/zap"

	"media-converter/internal/bootstrap"
)

// main runs the desktop shell serving ./frontend from disk, for development.
func main() {
	app, err := bootstrap.New()
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}
	defer func() { _ = app.Log.Sync() }()

	if err := app.Run(); err != nil {
		app.Log.Fatal("run app", zap.Error(err))
	}
}
