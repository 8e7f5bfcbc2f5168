// Package env reads the few settings that are needed before config.Load runs.
package env

import "os"

const (
	LogFormatKey = "SHOPSPHERE_LOG_FORMAT"
	instanceKey  = "DYNO"
)

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// Instance names the running process in logs: the platform dyno when set,
// otherwise "local".
func Instance() string {
	return Get(instanceKey, "local")
}
