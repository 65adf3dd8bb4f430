package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const fallbackVersion = "0.1.0"

// GetVersion returns APP_VERSION when set (CI builds), otherwise the VERSION
// file plus the git commit count as a patch suffix.
func GetVersion() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	base := baseVersion(".", "..")
	if n := gitCommitCount(); n > 0 {
		return base + "." + strconv.Itoa(n)
	}
	return base
}

// baseVersion reads the first VERSION file found in dirs.
func baseVersion(dirs ...string) string {
	for _, dir := range dirs {
		content, err := os.ReadFile(filepath.Join(dir, "VERSION"))
		if err != nil {
			continue
		}
		if v := strings.TrimSpace(string(content)); v != "" {
			return v
		}
	}
	return fallbackVersion
}

func gitCommitCount() int {
	out, err := exec.Command("git", "rev-list", "--count", "HEAD").Output()
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0
	}
	return n
}
