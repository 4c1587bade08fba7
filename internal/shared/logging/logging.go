package logging

import (
	"go.uber.org/zap"
)

// New builds the process logger. Development mode gets console output,
// anything else structured JSON.
func New(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
