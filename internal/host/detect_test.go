package host

import (
	"runtime"
	"testing"
)

func TestDetect_OS(t *testing.T) {
	info := Detect()

	if info.OS != runtime.GOOS {
		t.Errorf("Detect().OS = %q, want %q", info.OS, runtime.GOOS)
	}
}

func TestDetect_Linux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("Linux-specific test")
	}

	info := Detect()

	if info.KernelVersion == "" {
		t.Error("Detect().KernelVersion should not be empty on Linux")
	}
}

func TestIsWSL(t *testing.T) {
	tests := []struct {
		kernelVersion string
		want          bool
	}{
		{"Linux version 5.15.0-1-Microsoft", true},
		{"Linux version 5.15.90.1-microsoft-standard-WSL2", true},
		{"Linux version 6.1.0-generic #1 SMP", false},
		{"Linux version 6.5.0-wsl2", true},
		{"", false},
	}

	for _, tt := range tests {
		if got := isWSL(tt.kernelVersion); got != tt.want {
			t.Errorf("isWSL(%q) = %v, want %v", tt.kernelVersion, got, tt.want)
		}
	}
}

func TestNativeBackend(t *testing.T) {
	tests := []struct {
		info HostInfo
		want string
	}{
		{HostInfo{OS: "darwin"}, "keychain"},
		{HostInfo{OS: "linux"}, "secret-tool"},
		{HostInfo{OS: "linux", IsWSL2: true}, "file"},
		{HostInfo{OS: "windows"}, "file"},
	}
	for _, tt := range tests {
		if got := tt.info.NativeBackend(); got != tt.want {
			t.Errorf("%s: NativeBackend() = %q, want %q", tt.info, got, tt.want)
		}
	}
}

func TestString(t *testing.T) {
	if s := (HostInfo{OS: "linux", IsWSL2: true}).String(); s != "linux (WSL2)" {
		t.Errorf("String() = %q", s)
	}
	if s := (HostInfo{OS: "darwin"}).String(); s != "darwin" {
		t.Errorf("String() = %q", s)
	}
}
