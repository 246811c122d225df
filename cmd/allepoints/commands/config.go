package commands

import (
	"fmt"
	"os"
	"time"

	"allepoints-backend/lib/alle"
	"allepoints-backend/lib/configutil"
	configsqlite "allepoints-backend/lib/configutil/sqlite"
	"allepoints-backend/lib/serviceutil"
	"allepoints-backend/services/collector"
	"allepoints-backend/services/directory"
	directorydb "allepoints-backend/services/directory/db"
	"allepoints-backend/services/pointstore"
	pointstoredb "allepoints-backend/services/pointstore/db"
)

type DatabasesConfig struct {
	Directory  configsqlite.Struct `json:"directory"`
	Pointstore configsqlite.Struct `json:"pointstore"`
}

type AlleConfig struct {
	Mode            string `json:"mode"`
	ApiBaseUrl      string `json:"api_base_url"`
	BusinessBaseUrl string `json:"business_base_url"`
	ApiKey          string `json:"api_key"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	MinDelayMs      int    `json:"min_delay_ms"`
	MaxDelayMs      int    `json:"max_delay_ms"`
}

// the fields of the daemon's config.json5 the CLI cares about
type Config struct {
	Databases DatabasesConfig `json:"databases"`
	Alle      AlleConfig      `json:"alle"`
}

func readConfig() Config {
	err := configutil.LoadDotenv()
	if err != nil {
		serviceutil.Fatal("load .env", err)
	}
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("read config", err)
	}

	cfg.Alle.ApiKey = configutil.Getenv("ALLE_API_KEY", cfg.Alle.ApiKey)
	cfg.Alle.ApiBaseUrl = configutil.Getenv("ALLE_API_BASE_URL", cfg.Alle.ApiBaseUrl)
	cfg.Alle.BusinessBaseUrl = configutil.Getenv("ALLE_BUSINESS_BASE_URL", cfg.Alle.BusinessBaseUrl)
	cfg.Alle.Username = configutil.Getenv("ALLE_USERNAME", cfg.Alle.Username)
	cfg.Alle.Password = configutil.Getenv("ALLE_PASSWORD", cfg.Alle.Password)

	if cfg.Databases.Directory.File == "" && cfg.Databases.Directory.Url == "" {
		cfg.Databases.Directory.File = "directory.db"
	}
	if cfg.Databases.Pointstore.File == "" && cfg.Databases.Pointstore.Url == "" {
		cfg.Databases.Pointstore.File = "pointstore.db"
	}
	return cfg
}

func openServices(cfg Config) (directory.Service, pointstore.Store) {
	directoryDb, err := cfg.Databases.Directory.OpenDB(directorydb.Schema)
	if err != nil {
		serviceutil.Fatal("open directory database", err)
	}
	pointstoreDb, err := cfg.Databases.Pointstore.OpenDB(pointstoredb.Schema)
	if err != nil {
		serviceutil.Fatal("open pointstore database", err)
	}
	return directory.NewService(directoryDb), pointstore.NewStore(pointstoreDb)
}

func newPlatformClient(cfg AlleConfig, mock bool) collector.PlatformClient {
	if mock {
		return alle.NewStaticClient(alle.MockDataset())
	}

	mode := cfg.Mode
	if mode == "" {
		switch {
		case cfg.ApiKey != "":
			mode = "api"
		case cfg.Username != "":
			mode = "session"
		}
	}

	clientOpts := alle.ClientOptions{
		BaseUrl:  cfg.ApiBaseUrl,
		ApiKey:   cfg.ApiKey,
		MinDelay: time.Duration(cfg.MinDelayMs) * time.Millisecond,
		MaxDelay: time.Duration(cfg.MaxDelayMs) * time.Millisecond,
	}

	switch mode {
	case "mock":
		return alle.NewStaticClient(alle.MockDataset())
	case "api":
		client, err := alle.NewClient(clientOpts)
		if err != nil {
			serviceutil.Fatal("init alle client", err)
		}
		return client
	case "session":
		client, err := alle.NewSessionClient(clientOpts, alle.SessionOptions{
			BusinessUrl: cfg.BusinessBaseUrl,
			Username:    cfg.Username,
			Password:    cfg.Password,
		})
		if err != nil {
			serviceutil.Fatal("init alle client", err)
		}
		return client
	}

	serviceutil.Fatal("init alle client", fmt.Errorf("no alle credentials configured, pass --mock to use the built-in dataset"))
	return nil
}
