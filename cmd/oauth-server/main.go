package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pixelfort/oauth-server/internal"
	"github.com/pixelfort/oauth-server/internal/config"
	"github.com/pixelfort/oauth-server/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"server": map[string]any{
			"baseURL": "https://auth.yourcompany.com",
			"addr":    ":8080",
		},
		"auth": map[string]any{
			"signingKey": map[string]string{"$env": "SIGNING_KEY"},
			"codeTtl":    "10m",
			"tokenTtl":   "1h",
			"sessionTtl": "24h",
			"storage":    "memory",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	validate := flag.Bool("validate", false, "validate config and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	flag.Parse()

	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	if *validate {
		fmt.Printf("Config valid: %s\n", *conf)
		return
	}

	log.LogInfoWithFields("main", "Starting oauth-server", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	app, err := internal.NewApp(context.Background(), cfg)
	if err != nil {
		log.LogError("Failed to create application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.LogError("Failed to start server: %v", err)
		os.Exit(1)
	}
}
