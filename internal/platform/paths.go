// Package platform resolves the on-disk locations flyt uses outside the
// repository: the config file, the data directory, and dev log files.
package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Paths holds the resolved config file, data directory, and database file.
type Paths struct {
	ConfigPath string
	DataDir    string
	DBPath     string
}

// Options selects the directory name the paths are derived under.
type Options struct {
	AppName string
	DevMode bool
}

// dirName returns the per-app directory name, suffixed in dev mode so a dev
// build never touches the production database.
func (o Options) dirName() string {
	name := strings.TrimSpace(o.AppName)
	if name == "" {
		name = "flyt"
	}
	if o.DevMode {
		name += "-dev"
	}
	return name
}

// Resolve derives the app paths from the current platform's base directories.
func Resolve(opts Options) (Paths, error) {
	return resolve(runtime.GOOS, os.Getenv, opts)
}

func resolve(goos string, getenv func(string) string, opts Options) (Paths, error) {
	configBase, err := configBaseDir(goos, getenv)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config base dir: %w", err)
	}
	dataBase, err := dataBaseDir(goos, getenv)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve data base dir: %w", err)
	}
	return pathsUnder(configBase, dataBase, opts.dirName()), nil
}

// configBaseDir picks the platform convention for config files: APPDATA on
// Windows, Application Support on macOS, XDG with a ~/.config fallback
// elsewhere.
func configBaseDir(goos string, getenv func(string) string) (string, error) {
	switch goos {
	case "windows":
		if v := strings.TrimSpace(getenv("APPDATA")); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("APPDATA is not set")
	case "darwin":
		home, err := homeDir(getenv)
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		if v := strings.TrimSpace(getenv("XDG_CONFIG_HOME")); v != "" {
			return v, nil
		}
		home, err := homeDir(getenv)
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config"), nil
	}
}

// dataBaseDir picks the platform convention for mutable data. macOS keeps
// config and data under the same root.
func dataBaseDir(goos string, getenv func(string) string) (string, error) {
	switch goos {
	case "windows":
		if v := strings.TrimSpace(getenv("LOCALAPPDATA")); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("LOCALAPPDATA is not set")
	case "darwin":
		home, err := homeDir(getenv)
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		if v := strings.TrimSpace(getenv("XDG_DATA_HOME")); v != "" {
			return v, nil
		}
		home, err := homeDir(getenv)
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
}

func homeDir(getenv func(string) string) (string, error) {
	if v := strings.TrimSpace(getenv("HOME")); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(getenv("USERPROFILE")); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("home directory is not set")
}

func pathsUnder(configBase, dataBase, dirName string) Paths {
	dataDir := filepath.Join(dataBase, dirName)
	return Paths{
		ConfigPath: filepath.Join(configBase, dirName, "config.toml"),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, dirName+".db"),
	}
}
