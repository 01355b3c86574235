package config

import (
	"runtime"
)

// PlatformDefaults returns platform-specific default values
type PlatformDefaults struct {
	ConfigPath       string
	WorkingDirectory string
}

// GetPlatformDefaults returns platform-specific defaults based on runtime.GOOS
func GetPlatformDefaults() PlatformDefaults {
	switch runtime.GOOS {
	case "windows":
		return PlatformDefaults{
			ConfigPath:       `C:\ProgramData\AWSInventory\config.yaml`,
			WorkingDirectory: `C:\ProgramData\AWSInventory`,
		}
	case "linux":
		return PlatformDefaults{
			ConfigPath:       "/etc/aws-inventory/config.yaml",
			WorkingDirectory: "/var/lib/aws-inventory",
		}
	case "freebsd":
		return PlatformDefaults{
			ConfigPath:       "/usr/local/etc/aws-inventory/config.yaml",
			WorkingDirectory: "/var/db/aws-inventory",
		}
	default:
		// Fallback to Linux-like defaults for unknown platforms
		return PlatformDefaults{
			ConfigPath:       "/etc/aws-inventory/config.yaml",
			WorkingDirectory: "/var/lib/aws-inventory",
		}
	}
}

// GetDefaultConfigPath returns the platform-specific default config path.
// The service install command points the unit at this location; interactive
// runs fall back to pure defaults when the file does not exist.
func GetDefaultConfigPath() string {
	return GetPlatformDefaults().ConfigPath
}
