// Package config loads node configuration from environment variables, with
// optional YAML deployment profiles layered on top.
package config

import (
	"os"
	"strconv"
)

// Config holds node configuration.
type Config struct {
	Port            string
	LogLevel        string
	AuditDBPath     string
	OTLPEndpoint    string
	JWTSecret       string
	AdmissionPolicy string
	ProfilesDir     string
	Profile         string

	ApprovalThreshold    uint32
	ActiveProposalsLimit uint32
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	auditPath := os.Getenv("AUDIT_DB_PATH")
	if auditPath == "" {
		auditPath = "covenant-audit.db"
	}

	return &Config{
		Port:                 port,
		LogLevel:             logLevel,
		AuditDBPath:          auditPath,
		OTLPEndpoint:         os.Getenv("OTLP_ENDPOINT"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		AdmissionPolicy:      os.Getenv("ADMISSION_POLICY"),
		ProfilesDir:          os.Getenv("PROFILES_DIR"),
		Profile:              os.Getenv("PROFILE"),
		ApprovalThreshold:    envUint32("APPROVAL_THRESHOLD", 3),
		ActiveProposalsLimit: envUint32("ACTIVE_PROPOSALS_LIMIT", 10),
	}
}

func envUint32(key string, fallback uint32) uint32 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || v == 0 {
		return fallback
	}
	return uint32(v)
}
