package main

import (
	"embed"
	"log"

	"go.uber.org/zap"

	"media-converter/internal/bootstrap"
)

//go:embed frontend/index.html
var appAssets embed.FS

func main() {
	app, err := bootstrap.NewWithAssets(appAssets)
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}
	defer func() { _ = app.Log.Sync() }()

	if err := app.Run(); err != nil {
		app.Log.Fatal("run app", zap.Error(err))
	}
}
