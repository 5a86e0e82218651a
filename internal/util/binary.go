// Package util provides shared utility functions.
package util

import (
	"fmt"
	"os"
	"os/exec"
)

// FindBinary locates an executable by name. Candidates are tried in order:
// each environment variable override, ./name for development checkouts,
// then PATH. The first candidate that exists and is executable wins.
func FindBinary(name string, envVars ...string) (string, error) {
	for _, envVar := range envVars {
		if envVar == "" {
			continue
		}
		if envPath := os.Getenv(envVar); envPath != "" {
			if isExecutable(envPath) {
				return envPath, nil
			}
		}
	}

	if localPath := "./" + name; isExecutable(localPath) {
		return localPath, nil
	}

	// LookPath already verifies executability.
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
