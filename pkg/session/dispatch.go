package session

import (
	"context"
	"strings"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/metrics"
)

// FlutterScriptPrefix selects a custom command in an execute call,
// e.g. "flutter: waitForAbsent".
const FlutterScriptPrefix = "flutter:"

type localHandler func(s *Session, ctx context.Context, cmd driver.Command) (interface{}, error)

var localHandlers = map[string]localHandler{
	"findElement":             (*Session).findElement,
	"findElements":            (*Session).findElements,
	"findElementFromElement":  (*Session).findElement,
	"findElementsFromElement": (*Session).findElements,
	"click":                   (*Session).click,
	"getText":                 (*Session).getText,
	"getAttribute":            (*Session).getAttribute,
	"getElementRect":          (*Session).getElementRect,
	"elementDisplayed":        (*Session).elementDisplayed,
	"elementEnabled":          (*Session).elementEnabled,
	"setValue":                (*Session).setValue,
	"clear":                   (*Session).clear,
	"execute":                 (*Session).execute,
	"getSession":              (*Session).getSession,
}

// ExecuteCommand runs one command on the session. Commands are serialized.
func (s *Session) ExecuteCommand(ctx context.Context, cmd driver.Command) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return nil, core.ErrNoSuchSession
	}
	return s.dispatch(ctx, cmd)
}

func (s *Session) dispatch(ctx context.Context, cmd driver.Command) (interface{}, error) {
	if cmd.Name == "setContext" {
		return s.setContext(ctx, cmd)
	}

	if s.context.Route(cmd.Name) == RouteLocal {
		if h, ok := localHandlers[cmd.Name]; ok {
			s.opts.Metrics.Command(metrics.RouteLocal, cmd.Name)
			return h(s, ctx, cmd)
		}
	}

	s.opts.Metrics.Command(metrics.RoutePlatform, cmd.Name)
	result, err := s.platform.ExecuteCommand(ctx, cmd)
	if err != nil {
		return nil, err
	}
	s.elements.RegisterValue(result, s.platform.Commander())
	return result, nil
}

// setContext records the new context, then hands the switch to the
// platform driver.
func (s *Session) setContext(ctx context.Context, cmd driver.Command) (interface{}, error) {
	name := cmd.Param("name")
	if !s.context.Switch(name) {
		s.opts.Metrics.Command(metrics.RouteLocal, cmd.Name)
		return nil, nil
	}
	logger.WithSession(s.id).Debugf("Context switched to %s", s.context.Current())
	s.opts.Metrics.Command(metrics.RoutePlatform, cmd.Name)
	return s.platform.ExecuteCommand(ctx, cmd)
}

// Forward relays a raw request to the platform driver (webview proxy mode).
func (s *Session) Forward(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return 0, nil, core.ErrNoSuchSession
	}
	s.opts.Metrics.Command(metrics.RoutePassthrough, method+" "+routeLabel(path))
	return s.platform.Forward(ctx, method, path, body)
}

// routeLabel keeps the first path segment so metric labels stay bounded.
func routeLabel(path string) string {
	p := strings.TrimPrefix(path, "/")
	if i := strings.Index(p, "/"); i >= 0 {
		p = p[:i]
	}
	return "/" + p
}

func (s *Session) getSession(_ context.Context, _ driver.Command) (interface{}, error) {
	return s.resolvedCaps, nil
}

// execute runs a script. "flutter:" scripts select a custom command; the
// rest go to the platform driver.
func (s *Session) execute(ctx context.Context, cmd driver.Command) (interface{}, error) {
	script := cmd.StringParam("script")
	args, _ := cmd.Param("args").([]interface{})

	if strings.HasPrefix(script, FlutterScriptPrefix) {
		name := strings.TrimSpace(strings.TrimPrefix(script, FlutterScriptPrefix))
		var params map[string]interface{}
		if len(args) > 0 {
			params, _ = args[0].(map[string]interface{})
		}
		s.opts.Metrics.Command(metrics.RouteFlutter, name)
		return s.executeMethod(ctx, name, params)
	}
	return s.platform.Execute(ctx, script, args)
}
