package main

import (
	"os"
	"strconv"
	"strings"
)

const (
	defaultMaxSizeMB = 200
	bytesPerMB       = 1024 * 1024
)

// Config holds the service's environment-derived settings.
type Config struct {
	DBPath            string
	UploadDir         string
	MaxUploadBytes    int64
	MaxUploadSizeText string
	Port              string
	CORSAllowedOrigins []string
	CookieSecure      bool
	SpatialExtPath    string
	SpatialExtDir     string
}

// LoadConfig reads configuration from environment variables, applying the
// defaults documented in SPEC_FULL.md §6.
func LoadConfig() Config {
	maxBytes, maxLabel := readMaxSizeConfig()

	return Config{
		DBPath:             getEnv("DB_PATH", "./data/mapflow.duckdb"),
		UploadDir:          getEnv("UPLOAD_DIR", "./data/uploads"),
		MaxUploadBytes:     maxBytes,
		MaxUploadSizeText:  maxLabel,
		Port:               getEnv("PORT", "3000"),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
		CookieSecure:       getEnvBool("COOKIE_SECURE", false),
		SpatialExtPath:     getEnv("SPATIAL_EXTENSION_PATH", ""),
		SpatialExtDir:      getEnv("SPATIAL_EXTENSION_DIR", ""),
	}
}

func readMaxSizeConfig() (int64, string) {
	maxMB := int64(defaultMaxSizeMB)
	if v := os.Getenv("UPLOAD_MAX_SIZE_MB"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			maxMB = parsed
		}
	}
	bytes := maxMB * bytesPerMB
	return bytes, formatBytes(bytes)
}

// formatBytes renders a byte count using the largest unit that divides it
// evenly, falling back to plain bytes.
func formatBytes(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * 1024
		gb = 1024 * 1024 * 1024
	)
	switch {
	case bytes >= gb && bytes%gb == 0:
		return strconv.FormatInt(bytes/gb, 10) + "GB"
	case bytes >= mb && bytes%mb == 0:
		return strconv.FormatInt(bytes/mb, 10) + "MB"
	case bytes >= kb && bytes%kb == 0:
		return strconv.FormatInt(bytes/kb, 10) + "KB"
	default:
		return strconv.FormatInt(bytes, 10) + "B"
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
