// Package host detects the platform keygate runs on.
package host

import (
	"os"
	"runtime"
	"strings"
)

// HostInfo describes the host operating system environment.
type HostInfo struct {
	OS            string // "linux", "darwin", "windows", etc.
	IsWSL2        bool
	KernelVersion string
}

// Detect inspects the current host and returns a HostInfo.
func Detect() HostInfo {
	info := HostInfo{
		OS: runtime.GOOS,
	}

	if runtime.GOOS == "linux" {
		data, err := os.ReadFile("/proc/version")
		if err == nil {
			info.KernelVersion = strings.TrimSpace(string(data))
			info.IsWSL2 = isWSL(info.KernelVersion)
		}
	}

	return info
}

func isWSL(kernelVersion string) bool {
	lower := strings.ToLower(kernelVersion)
	return strings.Contains(lower, "microsoft") || strings.Contains(lower, "wsl")
}

// NativeBackend names the secret store backend that normally works on this
// host: the macOS keychain, secret-tool on desktop Linux, and the encrypted
// file elsewhere. WSL2 rarely runs a Secret Service, so it gets the file store.
func (h HostInfo) NativeBackend() string {
	switch {
	case h.OS == "darwin":
		return "keychain"
	case h.OS == "linux" && !h.IsWSL2:
		return "secret-tool"
	default:
		return "file"
	}
}

// String is a short platform label for reports.
func (h HostInfo) String() string {
	if h.IsWSL2 {
		return "linux (WSL2)"
	}
	return h.OS
}
