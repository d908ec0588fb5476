// Package config handles configuration loading and validation for docsession.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/docsession/
//   - Linux:   ~/.local/share/docsession/
//   - Windows: %APPDATA%\docsession\
//
// Falls back to ~/.docsession if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	case "linux":
		return linuxDataDir()
	case "windows":
		return windowsDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformCacheDir returns the platform-specific cache directory.
func PlatformCacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSCacheDir()
	case "linux":
		return linuxCacheDir()
	case "windows":
		return windowsCacheDir()
	default:
		return filepath.Join(fallbackDataDir(), "cache")
	}
}

// PlatformConfigDir returns the platform-specific config directory.
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir() // macOS uses the same dir for config and data
	case "linux":
		return linuxConfigDir()
	case "windows":
		return windowsDataDir() // Windows uses the same dir for config and data
	default:
		return fallbackDataDir()
	}
}

// macOS-specific paths

func macOSDataDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, "Library", "Application Support", "docsession")
}

func macOSCacheDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, "Library", "Caches", "docsession")
}

// Linux-specific paths following the XDG Base Directory Specification

func linuxDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "docsession")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "docsession")
}

func linuxConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "docsession")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "docsession")
}

func linuxCacheDir() string {
	if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
		return filepath.Join(xdgCache, "docsession")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "docsession")
}

// Windows-specific paths

func windowsDataDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "docsession")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "AppData", "Roaming", "docsession")
}

func windowsCacheDir() string {
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		return filepath.Join(localAppData, "docsession", "cache")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "AppData", "Local", "docsession", "cache")
}

// Fallback path (legacy compatibility)

func fallbackDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".docsession")
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{"toml", "yaml", "yml"}
}

// FindConfigFile searches for a config file in standard locations, in
// order: current directory, then the platform config directory.
func FindConfigFile() string {
	searchDirs := []string{".", PlatformConfigDir()}

	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
