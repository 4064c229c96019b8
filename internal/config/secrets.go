package config

import (
	"os"
	"strings"
)

// getEnv retrieves an environment variable value.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrFile retrieves a value from either a direct environment variable
// or a file path specified by the file key (Docker secrets pattern).
//
// If both are set, the file takes precedence. This allows local development
// with direct values while production uses Docker secrets.
//
// The file contents are trimmed of leading/trailing whitespace.
func getEnvOrFile(directKey, fileKey string) (string, error) {
	if filePath := os.Getenv(fileKey); filePath != "" {
		content, err := readSecretFile(filePath)
		if err != nil {
			return "", err
		}
		return content, nil
	}

	return os.Getenv(directKey), nil
}

// getEnvWithFileFallback retrieves a value supporting the _FILE suffix pattern.
// Given a base key like "PASSWORD", it checks:
//  1. PASSWORD_FILE - reads file contents if set
//  2. PASSWORD - returns direct value if set
func getEnvWithFileFallback(prefix, key string) (string, error) {
	return getEnvOrFile(prefix+key, prefix+key+"_FILE")
}

// readSecretFile returns the trimmed contents of a secret file.
func readSecretFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(content)), nil
}

// parseBool parses a boolean string, returning ok=false on parse failure.
// Accepts: true/false, 1/0, yes/no, on/off (case-insensitive).
func parseBool(s string) (value bool, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// normalizeProfileName converts a profile name to environment variable format.
// Example: "nas-backup" → "NAS_BACKUP"
func normalizeProfileName(name string) string {
	normalized := strings.ToUpper(name)
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, ".", "_")
	return normalized
}

// envPrefix creates the full environment variable prefix for a profile.
// Example: "nas-backup" → "SFTPGATE_NAS_BACKUP_"
func envPrefix(profileName string) string {
	return EnvPrefix + "_" + normalizeProfileName(profileName) + "_"
}
