// Package git provides minimal helpers for detecting the enclosing git
// repository. dispatch uses this during workspace init to place a .gitignore
// entry for the local database.
package git

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// IsRepo reports whether the working directory is inside a git repository.
func IsRepo() bool {
	_, err := runGit("rev-parse", "--git-dir")
	return err == nil
}

// GetRootDir returns the repository root directory.
func GetRootDir() (string, error) {
	out, err := runGit("rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func runGit(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %s", err, stderr.String())
	}
	return stdout.String(), nil
}
