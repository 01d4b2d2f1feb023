package session

import "strings"

// FlutterLocatorPrefix marks a Flutter strategy explicitly, e.g. "-flutter key".
const FlutterLocatorPrefix = "-flutter "

// FlutterLocators are the widget finder strategies served by the Flutter server.
var FlutterLocators = []string{
	"key",
	"semantics label",
	"text",
	"type",
	"text containing",
	"descendant",
	"ancestor",
}

var nativeLocators = []string{
	"xpath",
	"css selector",
	"id",
	"name",
	"class name",
	"-android uiautomator",
	"accessibility id",
	"-ios predicate string",
	"-ios class chain",
}

// LocatorStrategies lists every strategy this driver accepts. Flutter
// strategies appear both bare and prefixed for older clients.
var LocatorStrategies = func() []string {
	out := append([]string{}, nativeLocators...)
	out = append(out, FlutterLocators...)
	for _, l := range FlutterLocators {
		out = append(out, FlutterLocatorPrefix+l)
	}
	return out
}()

// IsFlutterLocator reports whether strategy is served by the Flutter server.
func IsFlutterLocator(strategy string) bool {
	bare := strings.TrimPrefix(strategy, FlutterLocatorPrefix)
	for _, l := range FlutterLocators {
		if l == bare {
			return true
		}
	}
	return false
}

// IsSupportedLocator reports whether strategy is in LocatorStrategies.
func IsSupportedLocator(strategy string) bool {
	for _, l := range LocatorStrategies {
		if l == strategy {
			return true
		}
	}
	return false
}

// flutterStrategy strips the "-flutter " prefix.
func flutterStrategy(strategy string) string {
	return strings.TrimPrefix(strategy, FlutterLocatorPrefix)
}

// flutterDriverCommands run locally while in the native context.
var flutterDriverCommands = map[string]bool{
	"createSession":           true,
	"deleteSession":           true,
	"getSession":              true,
	"getSessions":             true,
	"findElement":             true,
	"findElements":            true,
	"findElementFromElement":  true,
	"findElementsFromElement": true,
	"click":                   true,
	"getText":                 true,
	"getAttribute":            true,
	"getElementRect":          true,
	"elementDisplayed":        true,
	"elementEnabled":          true,
	"setValue":                true,
	"clear":                   true,
	"execute":                 true,
}

// IsFlutterDriverCommand reports whether name belongs to the Flutter-domain allow-list.
func IsFlutterDriverCommand(name string) bool {
	return flutterDriverCommands[name]
}
