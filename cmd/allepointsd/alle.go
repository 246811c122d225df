package main

import (
	"fmt"
	"log/slog"
	"time"

	"allepoints-backend/lib/alle"
	"allepoints-backend/services/collector"
)

type AlleConfig struct {
	// "mock" serves the built-in dataset without touching the
	// platform, "api" authenticates with an api key, "session" logs
	// into the business portal with a username and password. left
	// empty, the mode is inferred from whichever credentials are set.
	Mode            string `json:"mode"`
	ApiBaseUrl      string `json:"api_base_url"`
	BusinessBaseUrl string `json:"business_base_url"`
	ApiKey          string `json:"api_key"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	// polite pause between consecutive platform requests
	MinDelayMs int `json:"min_delay_ms"`
	MaxDelayMs int `json:"max_delay_ms"`
}

func NewPlatformClient(cfg AlleConfig, verbose bool) (collector.PlatformClient, error) {
	mode := cfg.Mode
	if mode == "" {
		switch {
		case cfg.ApiKey != "":
			mode = "api"
		case cfg.Username != "":
			mode = "session"
		}
	}

	debugDumpDir := ""
	if verbose {
		debugDumpDir = ".dev/resty/alle"
	}
	clientOpts := alle.ClientOptions{
		BaseUrl:      cfg.ApiBaseUrl,
		ApiKey:       cfg.ApiKey,
		MinDelay:     time.Duration(cfg.MinDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		DebugDumpDir: debugDumpDir,
	}

	switch mode {
	case "mock":
		slog.Info("serving the built-in mock dataset, no requests will hit the platform")
		return alle.NewStaticClient(alle.MockDataset()), nil
	case "api":
		if cfg.ApiBaseUrl == "" {
			return nil, fmt.Errorf("alle.api_base_url is required in api mode")
		}
		return alle.NewClient(clientOpts)
	case "session":
		if cfg.ApiBaseUrl == "" || cfg.BusinessBaseUrl == "" {
			return nil, fmt.Errorf("alle.api_base_url and alle.business_base_url are both required in session mode")
		}
		return alle.NewSessionClient(clientOpts, alle.SessionOptions{
			BusinessUrl: cfg.BusinessBaseUrl,
			Username:    cfg.Username,
			Password:    cfg.Password,
		})
	}
	return nil, fmt.Errorf("no alle credentials configured, set alle.mode to \"mock\" to run without any")
}
