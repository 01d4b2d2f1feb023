package core

import "testing"

func TestNormalizePlatform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ios", PlatformIOS},
		{"IOS", PlatformIOS},
		{"android", PlatformAndroid},
		{"ANDROID", PlatformAndroid},
		{"windows", PlatformWindows},
		{"mac", PlatformMac},
		{"Mac", PlatformMac},
		{"tvos", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePlatform(tt.in); got != tt.want {
			t.Errorf("NormalizePlatform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTargetFor(t *testing.T) {
	tests := []struct {
		platform string
		real     bool
		want     Target
	}{
		{"Android", false, TargetAndroid},
		{"Android", true, TargetAndroid},
		{"iOS", true, TargetIOSReal},
		{"iOS", false, TargetIOSSimulator},
		{"windows", false, TargetWindows},
		{"mac", true, TargetMac},
		{"linux", false, TargetUnknown},
	}
	for _, tt := range tests {
		if got := TargetFor(tt.platform, tt.real); got != tt.want {
			t.Errorf("TargetFor(%q, %v) = %v, want %v", tt.platform, tt.real, got, tt.want)
		}
	}
}

func TestTarget_DirectNetwork(t *testing.T) {
	direct := map[Target]bool{
		TargetAndroid:      false,
		TargetIOSReal:      false,
		TargetIOSSimulator: true,
		TargetWindows:      true,
		TargetMac:          true,
	}
	for target, want := range direct {
		if got := target.DirectNetwork(); got != want {
			t.Errorf("%v.DirectNetwork() = %v, want %v", target, got, want)
		}
	}
}

func TestIsDesktopPlatform(t *testing.T) {
	if !IsDesktopPlatform("windows") || !IsDesktopPlatform("MAC") {
		t.Error("windows and mac should be desktop")
	}
	if IsDesktopPlatform("iOS") || IsDesktopPlatform("Android") {
		t.Error("mobile platforms should not be desktop")
	}
}
