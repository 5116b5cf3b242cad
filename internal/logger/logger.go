package logger

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a JSON logrus.Logger. An explicit level such as "warn" wins;
// otherwise local and dev environments log at debug.
func New(env, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(parseLevel(env, level))
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	return log
}

func parseLevel(env, level string) logrus.Level {
	if level != "" {
		if lvl, err := logrus.ParseLevel(level); err == nil {
			return lvl
		}
	}
	switch strings.ToLower(env) {
	case "local", "dev":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}
