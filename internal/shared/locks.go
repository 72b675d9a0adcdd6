// Package shared holds identifiers used by more than one process.
package shared

import "fmt"

const defaultScope = "default"

// CompileLockKey builds the redis key guarding compiles for one daemon.
func CompileLockKey(scope string) string {
	return fmt.Sprintf("portcullis:compile:%s:lock", scopeOrDefault(scope))
}

// CompileFingerprintKey builds the redis key holding the last compiled
// fingerprint for one daemon.
func CompileFingerprintKey(scope string) string {
	return fmt.Sprintf("portcullis:compile:%s:fingerprint", scopeOrDefault(scope))
}

func scopeOrDefault(scope string) string {
	if scope == "" {
		return defaultScope
	}
	return scope
}
