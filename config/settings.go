package config

import (
	"log/slog"
	"strings"
	"time"

	"checkin-backend/localtime"
	"checkin-backend/textmatch"
	"checkin-backend/utils"
)

// Settings is the server configuration read from the environment.
type Settings struct {
	Port           string
	CORSOrigins    []string
	Location       *time.Location
	SessionIdleTTL time.Duration
	SearchLimit    int
	SeedDemo       bool
	LogLevel       slog.Level
	GinMode        string
}

// LoadSettings reads the environment. Database settings are resolved
// separately by ConnectDatabase.
func LoadSettings() Settings {
	return Settings{
		Port:           utils.EnvOrDefault("PORT", "8080"),
		CORSOrigins:    ParseCorsOrigins(utils.EnvOrDefault("CORS_ORIGINS", "")),
		Location:       localtime.Load(utils.EnvOrDefault("DISPLAY_TIMEZONE", "UTC")),
		SessionIdleTTL: utils.EnvDuration("SESSION_IDLE_TTL", 12*time.Hour),
		SearchLimit:    textmatch.ClampLimit(utils.EnvInt("SEARCH_LIMIT", textmatch.DefaultLimit)),
		SeedDemo:       utils.EnvBool("SEED_DEMO", false),
		LogLevel:       parseLogLevel(utils.EnvOrDefault("LOG_LEVEL", "info")),
		GinMode:        utils.EnvOrDefault("GIN_MODE", "release"),
	}
}

// ParseCorsOrigins splits a comma separated list; empty means any origin.
func ParseCorsOrigins(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{"*"}
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func parseLogLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}
