package pty

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// shellCandidates are tried in order when neither a configured shell nor
// $SHELL resolves.
var shellCandidates = []string{
	"/bin/bash",
	"/bin/zsh",
	"/bin/sh",
}

// ResolveShell returns the shell to spawn. A non-empty preferred value wins
// and may be a bare name looked up on $PATH; otherwise DetectShell decides.
func ResolveShell(preferred string) (string, error) {
	if preferred == "" {
		return DetectShell()
	}
	if filepath.IsAbs(preferred) {
		if isExecutable(preferred) {
			return preferred, nil
		}
		return "", fmt.Errorf("shell %s is not an executable file", preferred)
	}
	path, err := exec.LookPath(preferred)
	if err != nil {
		return "", fmt.Errorf("shell %s not found: %w", preferred, err)
	}
	return path, nil
}

// DetectShell finds the first available shell in order of preference:
// 1. $SHELL environment variable
// 2. /bin/bash
// 3. /bin/zsh
// 4. /bin/sh
// Returns an error if none are found.
func DetectShell() (string, error) {
	if shell := os.Getenv("SHELL"); shell != "" {
		if isExecutable(shell) {
			return shell, nil
		}
	}

	for _, candidate := range shellCandidates {
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no shell found: checked $SHELL, /bin/bash, /bin/zsh, /bin/sh")
}

// isExecutable checks if a path is a regular file with an execute bit set.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	mode := info.Mode()
	if !mode.IsRegular() {
		return false
	}
	return mode&0111 != 0
}
