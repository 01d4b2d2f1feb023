package session

import (
	"testing"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
)

func TestContextState_Initial(t *testing.T) {
	c := NewContextState(core.TargetAndroid)
	if c.Current() != NativeContext {
		t.Errorf("Current() = %q, want %q", c.Current(), NativeContext)
	}
	if c.CanProxy() || c.ProxyActive() {
		t.Error("native context must not proxy")
	}
}

func TestContextState_Webview(t *testing.T) {
	tests := []struct {
		target      core.Target
		proxyActive bool
	}{
		{core.TargetAndroid, true},
		{core.TargetWindows, true},
		{core.TargetIOSReal, false},
		{core.TargetIOSSimulator, false},
	}

	for _, tt := range tests {
		t.Run(tt.target.String(), func(t *testing.T) {
			c := NewContextState(tt.target)
			if !c.Switch("WEBVIEW_1") {
				t.Fatal("Switch should accept WEBVIEW_1")
			}
			if !c.CanProxy() {
				t.Error("CanProxy() should be true in a webview")
			}
			if c.ProxyActive() != tt.proxyActive {
				t.Errorf("ProxyActive() = %v, want %v", c.ProxyActive(), tt.proxyActive)
			}
			if c.Kind() != ContextWebview {
				t.Errorf("Kind() = %s", c.Kind())
			}
		})
	}
}

func TestContextState_InvalidArgumentKeepsState(t *testing.T) {
	c := NewContextState(core.TargetAndroid)
	c.Switch("WEBVIEW_chrome")

	for _, arg := range []interface{}{"", nil, 42, []interface{}{"WEBVIEW_2"}} {
		if c.Switch(arg) {
			t.Errorf("Switch(%v) should be ignored", arg)
		}
		if c.Current() != "WEBVIEW_chrome" || !c.CanProxy() {
			t.Errorf("Switch(%v) changed state to %q", arg, c.Current())
		}
	}
}

func TestContextState_OtherNamesLeaveWebview(t *testing.T) {
	c := NewContextState(core.TargetAndroid)
	c.Switch("WEBVIEW_1")
	c.Switch("CHROMIUM")

	if c.Current() != "CHROMIUM" {
		t.Errorf("Current() = %q", c.Current())
	}
	if c.CanProxy() {
		t.Error("CHROMIUM is not a webview context")
	}
}

func TestContextState_Reset(t *testing.T) {
	c := NewContextState(core.TargetAndroid)
	c.Switch("WEBVIEW_1")
	c.Reset()

	if c.Current() != NativeContext || c.CanProxy() || c.ProxyActive() {
		t.Error("Reset should return to the native context")
	}
}

func TestContextState_Route(t *testing.T) {
	c := NewContextState(core.TargetAndroid)

	if c.Route("findElement") != RouteLocal {
		t.Error("findElement in NATIVE_APP should be local")
	}
	if c.Route("getPageSource") != RoutePlatform {
		t.Error("getPageSource is not a Flutter-domain command")
	}

	c.Switch("FLUTTER")
	if c.Route("click") != RoutePlatform {
		t.Error("only NATIVE_APP routes Flutter-domain commands locally")
	}

	c.Switch("WEBVIEW_1")
	if c.Route("findElement") != RoutePlatform {
		t.Error("findElement in a webview goes to the platform driver")
	}
}

func TestLocators(t *testing.T) {
	for _, s := range []string{"key", "-flutter key", "text containing", "-flutter descendant"} {
		if !IsFlutterLocator(s) {
			t.Errorf("%q should be a Flutter locator", s)
		}
		if !IsSupportedLocator(s) {
			t.Errorf("%q should be supported", s)
		}
	}
	for _, s := range []string{"xpath", "accessibility id", "-android uiautomator"} {
		if IsFlutterLocator(s) {
			t.Errorf("%q is native", s)
		}
		if !IsSupportedLocator(s) {
			t.Errorf("%q should be supported", s)
		}
	}
	if IsSupportedLocator("-flutter xpath") || IsSupportedLocator("link text") {
		t.Error("unexpected strategy accepted")
	}
	if flutterStrategy("-flutter semantics label") != "semantics label" {
		t.Error("prefix should be stripped")
	}
	if len(LocatorStrategies) != len(nativeLocators)+2*len(FlutterLocators) {
		t.Errorf("LocatorStrategies has %d entries", len(LocatorStrategies))
	}
}
