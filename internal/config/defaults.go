package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "mirrorgate"

// DataDir returns the platform-specific data directory. MIRRORGATE_DATA_DIR
// overrides it.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/mirrorgate/
//   - Linux:   $XDG_DATA_HOME/mirrorgate/ or ~/.local/share/mirrorgate/
//   - Windows: %APPDATA%\mirrorgate\
//
// Falls back to ~/.mirrorgate if platform detection fails.
func DataDir() string {
	if dir := os.Getenv("MIRRORGATE_DATA_DIR"); dir != "" {
		return dir
	}
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	case "linux":
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	case "windows":
		return windowsDataDir()
	default:
		return fallbackDataDir()
	}
}

// ConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/mirrorgate/
//   - Linux:   $XDG_CONFIG_HOME/mirrorgate/ or ~/.config/mirrorgate/
//   - Windows: %APPDATA%\mirrorgate\
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir() // macOS uses same dir for config and data
	case "linux":
		return xdgDir("XDG_CONFIG_HOME", ".config")
	case "windows":
		return windowsDataDir()
	default:
		return fallbackDataDir()
	}
}

func macOSDataDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, "Library", "Application Support", appName)
}

// xdgDir follows the XDG Base Directory Specification.
func xdgDir(env string, fallback ...string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(append(append([]string{home}, fallback...), appName)...)
}

func windowsDataDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "AppData", "Roaming", appName)
}

func fallbackDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+appName)
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	// Search order:
	// 1. ./mirrorgate.<ext>
	// 2. <config dir>/config.<ext>
	// 3. <data dir>/config.<ext>
	candidates := []struct{ dir, base string }{
		{".", appName},
		{ConfigDir(), "config"},
		{DataDir(), "config"},
	}

	for _, c := range candidates {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(c.dir, c.base+"."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
