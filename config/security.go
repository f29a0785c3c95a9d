package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxConfigSize = 1 << 20 // 1MB
	maxEnvVarLen  = 4096
	maxPathLen    = 4096
)

// format identifies the encoding of a config file by extension
type format int

const (
	formatJSON format = iota
	formatYAML
)

// formatOf validates the path and returns its encoding
func formatOf(path string) (format, error) {
	if path == "" {
		return 0, fmt.Errorf("empty config path")
	}
	if len(path) > maxPathLen {
		return 0, fmt.Errorf("path too long: %d > %d", len(path), maxPathLen)
	}
	if strings.Contains(filepath.ToSlash(path), "../") {
		return 0, fmt.Errorf("path traversal not allowed: %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("unsupported config extension: %s", path)
	}
}

// safeReadFile reads a regular file no larger than maxConfigSize
func safeReadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}
	return os.ReadFile(path)
}

// safeWriteFile writes with owner-only permissions
func safeWriteFile(path string, data []byte) error {
	if len(data) > maxConfigSize {
		return fmt.Errorf("config data too large: %d bytes > %d", len(data), maxConfigSize)
	}
	return os.WriteFile(path, data, 0600)
}

func validateEnvVar(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("environment variable %s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("null byte in environment variable %s", key)
	}
	return nil
}
