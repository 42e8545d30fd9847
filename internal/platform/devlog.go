package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DevLogFilePath resolves the day-stamped dev log file for an app. A relative
// base dir is anchored at the nearest workspace root so logs land in the
// project rather than in whatever directory the binary started from.
func DevLogFilePath(baseDir, appName string, day time.Time) (string, error) {
	base := strings.TrimSpace(baseDir)
	if base == "" {
		base = filepath.Join("."+sanitizeLogFileStem(appName), "log")
	}
	if !filepath.IsAbs(base) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working dir: %w", err)
		}
		base = filepath.Join(workspaceRootFrom(cwd), base)
	}
	fileName := fmt.Sprintf("%s-%s.log", sanitizeLogFileStem(appName), day.Format("20060102"))
	return filepath.Join(filepath.Clean(base), fileName), nil
}

// workspaceRootFrom walks up from start until it finds a workspace marker.
// Without one it falls back to start itself.
func workspaceRootFrom(start string) string {
	start = filepath.Clean(strings.TrimSpace(start))
	if start == "" {
		return "."
	}
	dir := start
	for {
		if hasWorkspaceMarker(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// hasWorkspaceMarker reports whether a directory looks like a project root.
func hasWorkspaceMarker(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	return false
}

// sanitizeLogFileStem normalizes app names into safe file-name segments.
func sanitizeLogFileStem(appName string) string {
	stem := strings.TrimSpace(appName)
	if stem == "" {
		return "flyt"
	}
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-")
	stem = strings.Trim(replacer.Replace(stem), "-")
	if stem == "" {
		return "flyt"
	}
	return stem
}
