package main

import (
	"context"
	"embed"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tigerroll/covidash/internal/app"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// embeddedConfig embeds the application's YAML configuration.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// migrationsFS bundles the per-dialect schema migrations into the binary.
//
//go:embed all:resources/migrations
var migrationsFS embed.FS

// dbProviderNames reads the comma-separated DB_ADAPTERS variable, defaulting to every dialect.
func dbProviderNames() []string {
	adapters := os.Getenv("DB_ADAPTERS")
	if adapters == "" {
		adapters = "postgres,mysql,sqlite"
	}
	var names []string
	for _, name := range strings.Split(adapters, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Shutting down...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	var migrations fs.FS = migrationsFS
	app.RunApplication(ctx, envFilePath, embeddedConfig, migrations, app.DBProviderOptions(dbProviderNames()...))
	os.Exit(0)
}
