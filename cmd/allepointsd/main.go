package main

import (
	"flag"
	"log/slog"
	"os"
	"strconv"
	"time"

	"allepoints-backend/lib/configutil"
	configsqlite "allepoints-backend/lib/configutil/sqlite"
	"allepoints-backend/lib/serviceutil"
	"allepoints-backend/services/collector"
	"allepoints-backend/services/directory"
	directorydb "allepoints-backend/services/directory/db"
	"allepoints-backend/services/httpapi"
	"allepoints-backend/services/notifier"
	"allepoints-backend/services/pointstore"
	pointstoredb "allepoints-backend/services/pointstore/db"
)

type DatabasesConfig struct {
	Directory  configsqlite.Struct `json:"directory"`
	Pointstore configsqlite.Struct `json:"pointstore"`
}

type ApiConfig struct {
	AccessToken    string   `json:"access_token"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimit      int      `json:"rate_limit"`
}

type SyncConfig struct {
	// hours of the day (practice timezone) the roster is pulled at
	Hours []int `json:"hours"`
}

type DigestConfig struct {
	Enabled          bool                `json:"enabled"`
	Smtp             notifier.SmtpConfig `json:"smtp"`
	Recipients       []string            `json:"recipients"`
	ExpiryWindowDays int                 `json:"expiry_window_days"`
	Hour             int                 `json:"hour"`
}

type Config struct {
	Port      int             `json:"port"`
	Databases DatabasesConfig `json:"databases"`
	Alle      AlleConfig      `json:"alle"`
	Api       ApiConfig       `json:"api"`
	Sync      SyncConfig      `json:"sync"`
	Digest    DigestConfig    `json:"digest"`
}

func applyEnvOverrides(cfg *Config) {
	cfg.Alle.ApiKey = configutil.Getenv("ALLE_API_KEY", cfg.Alle.ApiKey)
	cfg.Alle.ApiBaseUrl = configutil.Getenv("ALLE_API_BASE_URL", cfg.Alle.ApiBaseUrl)
	cfg.Alle.BusinessBaseUrl = configutil.Getenv("ALLE_BUSINESS_BASE_URL", cfg.Alle.BusinessBaseUrl)
	cfg.Alle.Username = configutil.Getenv("ALLE_USERNAME", cfg.Alle.Username)
	cfg.Alle.Password = configutil.Getenv("ALLE_PASSWORD", cfg.Alle.Password)

	if port := configutil.Getenv("PORT", ""); port != "" {
		value, err := strconv.Atoi(port)
		if err != nil {
			serviceutil.Fatal("parse PORT", err)
		}
		cfg.Port = value
	}
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	initialSync := flag.Bool("sync", false, "Trigger a collection run immediately on start.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	InitTelemetry(ctx, *verbose)

	err := configutil.LoadDotenv()
	if err != nil {
		serviceutil.Fatal("load .env", err)
	}
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("read config", err)
	}
	if os.IsNotExist(err) {
		slog.Warn("no config.json5 found, running on environment variables alone")
	}
	applyEnvOverrides(&cfg)

	directoryDb, err := cfg.Databases.Directory.OpenDB(directorydb.Schema)
	if err != nil {
		serviceutil.Fatal("open directory database", err)
	}
	pointstoreDb, err := cfg.Databases.Pointstore.OpenDB(pointstoredb.Schema)
	if err != nil {
		serviceutil.Fatal("open pointstore database", err)
	}

	directoryService := directory.NewService(directoryDb)
	store := pointstore.NewStore(pointstoreDb)

	client, err := NewPlatformClient(cfg.Alle, *verbose)
	if err != nil {
		serviceutil.Fatal("init alle client", err)
	}

	collectorService := collector.NewService(collector.Options{
		Client:     client,
		Directory:  directoryService,
		Pointstore: store,
		SyncHours:  cfg.Sync.Hours,
	})
	collectorService.StartDaemon(ctx)
	if *initialSync {
		go func() {
			_, err := collectorService.RunOnce(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "initial sync", "err", err)
			}
		}()
	}

	if cfg.Digest.Enabled {
		notifierService := notifier.NewService(directoryService, notifier.Options{
			Smtp:         cfg.Digest.Smtp,
			Recipients:   cfg.Digest.Recipients,
			ExpiryWindow: time.Duration(cfg.Digest.ExpiryWindowDays) * 24 * time.Hour,
			DigestHour:   cfg.Digest.Hour,
		})
		notifierService.StartDaemon(ctx)
	}

	handler := httpapi.NewHandler(directoryService, store, collectorService, httpapi.Options{
		AccessToken:    cfg.Api.AccessToken,
		AllowedOrigins: cfg.Api.AllowedOrigins,
		RateLimit:      cfg.Api.RateLimit,
	})

	port := cfg.Port
	if port == 0 {
		port = 8000
	}
	go serviceutil.StartHttpServer(port, handler.Router())
	<-ctx.Done()
}
