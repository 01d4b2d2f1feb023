package core

import "strings"

// Platform names accepted in the platformName capability.
const (
	PlatformIOS     = "iOS"
	PlatformAndroid = "Android"
	PlatformWindows = "Windows"
	PlatformMac     = "Mac"
)

// Platforms lists the accepted platformName values in canonical casing.
var Platforms = []string{PlatformIOS, PlatformAndroid, PlatformWindows, PlatformMac}

// NormalizePlatform returns the canonical platform name for a case-insensitive
// match, or "" when the value is not a supported platform.
func NormalizePlatform(name string) string {
	for _, p := range Platforms {
		if strings.EqualFold(p, name) {
			return p
		}
	}
	return ""
}

// IsDesktopPlatform reports whether platformName names a desktop OS.
func IsDesktopPlatform(name string) bool {
	p := NormalizePlatform(name)
	return p == PlatformWindows || p == PlatformMac
}

// Target is the device class a session runs against. It is the one input
// that decides the port forwarding strategy.
type Target int

const (
	TargetUnknown Target = iota
	TargetAndroid
	TargetIOSReal
	TargetIOSSimulator
	TargetWindows
	TargetMac
)

// String returns the string representation of Target
func (t Target) String() string {
	switch t {
	case TargetAndroid:
		return "android"
	case TargetIOSReal:
		return "ios-real"
	case TargetIOSSimulator:
		return "ios-simulator"
	case TargetWindows:
		return "windows"
	case TargetMac:
		return "mac"
	default:
		return "unknown"
	}
}

// IsIOS is true for both real devices and simulators.
func (t Target) IsIOS() bool {
	return t == TargetIOSReal || t == TargetIOSSimulator
}

// IsDesktop is true for Windows and Mac.
func (t Target) IsDesktop() bool {
	return t == TargetWindows || t == TargetMac
}

// DirectNetwork is true when the host reaches the app's port without forwarding.
func (t Target) DirectNetwork() bool {
	return t == TargetIOSSimulator || t.IsDesktop()
}

// TargetFor classifies a platform name plus device kind.
func TargetFor(platformName string, realDevice bool) Target {
	switch NormalizePlatform(platformName) {
	case PlatformAndroid:
		return TargetAndroid
	case PlatformIOS:
		if realDevice {
			return TargetIOSReal
		}
		return TargetIOSSimulator
	case PlatformWindows:
		return TargetWindows
	case PlatformMac:
		return TargetMac
	default:
		return TargetUnknown
	}
}
