package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type Config struct {
	APIListenAddr string
	WSListenAddr  string
	LogLevel      string
	DataDir       string
	DatabaseURL   string
}

// Load reads an optional .env file and parses command line flags on top of
// it. Flags win over environment values.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("chat-relay", pflag.ContinueOnError)
	var (
		apiListenAddr = fs.StringP("api-listen-addr", "a", envOr("API_LISTEN_ADDR", ":8080"), "api listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", envOr("WS_LISTEN_ADDR", ":8888"), "websocket relay listen address")
		logLevel      = fs.StringP("log-level", "l", envOr("LOG_LEVEL", "debug"), "log level")
		dataDir       = fs.StringP("data-dir", "d", envOr("DATA_DIR", "data"), "directory for file-based chat logs")
		databaseURL   = fs.String("database-url", os.Getenv("DATABASE_URL"), "postgres dsn for the chat log (file store when empty)")
	)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return Config{
		APIListenAddr: *apiListenAddr,
		WSListenAddr:  *wsListenAddr,
		LogLevel:      *logLevel,
		DataDir:       *dataDir,
		DatabaseURL:   strings.TrimSpace(*databaseURL),
	}, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
