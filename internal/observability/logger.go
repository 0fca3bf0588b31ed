package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger tags the process-wide logger with the component name.
// logging.Configure* decides the writer and level; this only adds fields.
func InitLogger(app string) zerolog.Logger {
	logger := log.Logger.With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// Component returns a child of the global logger for one package-level owner.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
