package logging

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Config selects the log level and output format
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

// Setup configures the standard logrus logger
func Setup(cfg Config) error {
	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}

	var formatter log.Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &log.TextFormatter{FullTimestamp: true}
	case "json":
		formatter = &log.JSONFormatter{}
	default:
		return fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	log.SetOutput(os.Stdout)
	log.SetLevel(level)
	log.SetFormatter(formatter)
	return nil
}
