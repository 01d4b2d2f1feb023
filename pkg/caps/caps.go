// Package caps holds the session capability record and its constraint table.
package caps

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
)

// VendorPrefix is the W3C extension prefix carried by non-standard keys on the wire.
const VendorPrefix = "appium:"

// Capability keys this driver reads.
const (
	KeyPlatformName               = "platformName"
	KeyAutomationName             = "automationName"
	KeyUDID                       = "udid"
	KeyAVD                        = "avd"
	KeyLaunchTimeout              = "launchTimeout"
	KeyFlutterServerLaunchTimeout = "flutterServerLaunchTimeout"
	KeyFlutterSystemPort          = "flutterSystemPort"
	KeyAddress                    = "address"
	KeyPackageName                = "packageName"
	KeyAppPackage                 = "appPackage"
	KeyBundleID                   = "bundleId"
	KeyRealDevice                 = "realDevice"
	KeyDeviceAPILevel             = "deviceApiLevel"
	KeyProcessArguments           = "processArguments"
)

// w3cStandard keys are sent without the vendor prefix.
var w3cStandard = map[string]bool{
	"platformName":            true,
	"browserName":             true,
	"browserVersion":          true,
	"acceptInsecureCerts":     true,
	"pageLoadStrategy":        true,
	"proxy":                   true,
	"setWindowRect":           true,
	"timeouts":                true,
	"unhandledPromptBehavior": true,
	"webSocketUrl":            true,
}

// Capabilities is a capability record keyed without the vendor prefix.
type Capabilities map[string]interface{}

// Normalize strips the vendor prefix from every key. When both the prefixed
// and bare form are present the prefixed value wins.
func Normalize(raw map[string]interface{}) Capabilities {
	out := make(Capabilities, len(raw))
	for k, v := range raw {
		if !strings.HasPrefix(k, VendorPrefix) {
			out[k] = v
		}
	}
	for k, v := range raw {
		if strings.HasPrefix(k, VendorPrefix) {
			out[strings.TrimPrefix(k, VendorPrefix)] = v
		}
	}
	return out
}

// FromW3C extracts capabilities from a new-session request body. It accepts
// {"capabilities":{"alwaysMatch","firstMatch"}} and the legacy
// {"desiredCapabilities"} shape; alwaysMatch is merged with the first firstMatch entry.
func FromW3C(body map[string]interface{}) (Capabilities, error) {
	merged := map[string]interface{}{}

	if w3c, ok := body["capabilities"].(map[string]interface{}); ok {
		if always, ok := w3c["alwaysMatch"].(map[string]interface{}); ok {
			for k, v := range always {
				merged[k] = v
			}
		}
		if first, ok := w3c["firstMatch"].([]interface{}); ok && len(first) > 0 {
			entry, ok := first[0].(map[string]interface{})
			if !ok {
				return nil, core.ErrCapability.WithMessage("firstMatch entries must be objects")
			}
			for k, v := range entry {
				if _, dup := merged[k]; dup {
					return nil, core.ErrCapability.WithMessagef("capability %q appears in both alwaysMatch and firstMatch", k)
				}
				merged[k] = v
			}
		}
	}
	if len(merged) == 0 {
		if desired, ok := body["desiredCapabilities"].(map[string]interface{}); ok {
			for k, v := range desired {
				merged[k] = v
			}
		}
	}
	if len(merged) == 0 {
		return nil, core.ErrCapability.WithMessage("no capabilities supplied")
	}
	return Normalize(merged), nil
}

// W3C renders the record with vendor prefixes restored, for sending to a platform driver.
func (c Capabilities) W3C() map[string]interface{} {
	out := make(map[string]interface{}, len(c))
	for k, v := range c {
		if w3cStandard[k] || strings.Contains(k, ":") {
			out[k] = v
			continue
		}
		out[VendorPrefix+k] = v
	}
	return out
}

// Clone returns a deep copy. Values are assumed to be JSON-shaped.
func (c Capabilities) Clone() Capabilities {
	if c == nil {
		return nil
	}
	out := make(Capabilities, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// String returns a string capability or "".
func (c Capabilities) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// Int returns a numeric capability as int.
func (c Capabilities) Int(key string) (int, bool) {
	n, ok := toFloat(c[key])
	if !ok {
		return 0, false
	}
	return int(n), true
}

// Bool returns a boolean capability.
func (c Capabilities) Bool(key string) (bool, bool) {
	b, ok := c[key].(bool)
	return b, ok
}

// PlatformName returns the canonical platform name, or "" when unsupported.
func (c Capabilities) PlatformName() string {
	return core.NormalizePlatform(c.String(KeyPlatformName))
}

// UDID returns the device identifier.
func (c Capabilities) UDID() string {
	return c.String(KeyUDID)
}

// Address returns the explicit Flutter server host.
func (c Capabilities) Address() string {
	return c.String(KeyAddress)
}

// FlutterSystemPort returns the explicit local port, if set to a positive number.
func (c Capabilities) FlutterSystemPort() (int, bool) {
	p, ok := c.Int(KeyFlutterSystemPort)
	if !ok || p <= 0 {
		return 0, false
	}
	return p, true
}

// FlutterServerLaunchTimeout is the readiness window in milliseconds.
func (c Capabilities) FlutterServerLaunchTimeout() (time.Duration, bool) {
	ms, ok := toFloat(c[KeyFlutterServerLaunchTimeout])
	if !ok || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}

// WithFlutterServerPort returns a copy whose processArguments.args carry
// --flutter-server-port=<port>, so the app binds that port at startup.
func (c Capabilities) WithFlutterServerPort(port int) Capabilities {
	out := c.Clone()
	if out == nil {
		out = Capabilities{}
	}
	pa, _ := out[KeyProcessArguments].(map[string]interface{})
	if pa == nil {
		pa = map[string]interface{}{}
	}
	var args []interface{}
	switch a := pa["args"].(type) {
	case []interface{}:
		args = a
	case []string:
		for _, s := range a {
			args = append(args, s)
		}
	}
	pa["args"] = append(args, FlutterServerPortArg(port))
	out[KeyProcessArguments] = pa
	return out
}

// FlutterServerPortArg is the launch flag the in-app server reads its port from.
func FlutterServerPortArg(port int) string {
	return fmt.Sprintf("--flutter-server-port=%d", port)
}

// MarshalJSON keeps nil records encoding as {} rather than null.
func (c Capabilities) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(c))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint16:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
