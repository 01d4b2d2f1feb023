package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/proxy"
)

// sessionPath prefixes p with the remote session placeholder.
func sessionPath(p string) string {
	return "/session/" + proxy.SessionPlaceholder + p
}

func elementPath(id, p string) string {
	return sessionPath("/element/" + url.PathEscape(id) + p)
}

func (s *Session) findElement(ctx context.Context, cmd driver.Command) (interface{}, error) {
	return s.find(ctx, cmd, false)
}

func (s *Session) findElements(ctx context.Context, cmd driver.Command) (interface{}, error) {
	return s.find(ctx, cmd, true)
}

// find resolves a locator on the Flutter server or on the platform driver,
// depending on the strategy, and remembers which one owns the results.
func (s *Session) find(ctx context.Context, cmd driver.Command, multiple bool) (interface{}, error) {
	using := cmd.StringParam("using")
	selector := cmd.Param("value")
	parent := cmd.Var("elementId")

	suffix := "/element"
	if multiple {
		suffix = "/elements"
	}

	var (
		client driver.Commander
		path   string
		body   map[string]interface{}
	)

	switch {
	case IsFlutterLocator(using):
		client = s.flutter
		path = sessionPath(suffix)
		body = map[string]interface{}{
			"strategy": flutterStrategy(using),
			"selector": flutterSelector(flutterStrategy(using), selector),
		}
		if parent != "" {
			body["context"] = parent
		}
	case IsSupportedLocator(using):
		client = s.platform.Commander()
		path = sessionPath(suffix)
		if parent != "" {
			path = elementPath(parent, suffix)
		}
		body = map[string]interface{}{"using": using, "value": selector}
	default:
		return nil, core.ErrInvalidSelector.WithMessagef("locator strategy %q is not supported", using).
			WithDetails(map[string]interface{}{"supported": LocatorStrategies})
	}

	result, err := client.Command(ctx, path, http.MethodPost, body)
	if err != nil {
		return nil, err
	}
	s.elements.RegisterValue(result, client)
	return result, nil
}

// flutterSelector decodes the nested finder of descendant and ancestor
// locators, which clients send as a JSON string.
func flutterSelector(strategy string, selector interface{}) interface{} {
	if strategy != "descendant" && strategy != "ancestor" {
		return selector
	}
	raw, ok := selector.(string)
	if !ok || !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return selector
	}
	var nested map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &nested); err != nil {
		return selector
	}
	return nested
}

// commanderFor returns the client that produced id. Unknown ids belong to
// the platform driver.
func (s *Session) commanderFor(id string) driver.Commander {
	if c, ok := s.elements.Lookup(id); ok {
		return c
	}
	return s.platform.Commander()
}

func (s *Session) elementID(cmd driver.Command) (string, error) {
	id := cmd.Var("elementId")
	if id == "" {
		id = driver.ElementID(cmd.Param("element"))
	}
	if id == "" {
		return "", core.ErrMissingParameter.WithMessage("element id is required")
	}
	return id, nil
}

func (s *Session) elementCommand(ctx context.Context, cmd driver.Command, method, suffix string, body interface{}) (interface{}, error) {
	id, err := s.elementID(cmd)
	if err != nil {
		return nil, err
	}
	return s.commanderFor(id).Command(ctx, elementPath(id, suffix), method, body)
}

func (s *Session) click(ctx context.Context, cmd driver.Command) (interface{}, error) {
	id, err := s.elementID(cmd)
	if err != nil {
		return nil, err
	}
	return s.commanderFor(id).Command(ctx, elementPath(id, "/click"), http.MethodPost,
		map[string]interface{}{"element": id})
}

func (s *Session) getText(ctx context.Context, cmd driver.Command) (interface{}, error) {
	return s.elementCommand(ctx, cmd, http.MethodGet, "/text", nil)
}

func (s *Session) getAttribute(ctx context.Context, cmd driver.Command) (interface{}, error) {
	name := cmd.Var("name")
	if name == "" {
		name = cmd.StringParam("name")
	}
	if name == "" {
		return nil, core.ErrMissingParameter.WithMessage("attribute name is required")
	}
	return s.elementCommand(ctx, cmd, http.MethodGet, "/attribute/"+url.PathEscape(name), nil)
}

func (s *Session) getElementRect(ctx context.Context, cmd driver.Command) (interface{}, error) {
	return s.elementCommand(ctx, cmd, http.MethodGet, "/rect", nil)
}

func (s *Session) elementDisplayed(ctx context.Context, cmd driver.Command) (interface{}, error) {
	return s.elementCommand(ctx, cmd, http.MethodGet, "/displayed", nil)
}

func (s *Session) elementEnabled(ctx context.Context, cmd driver.Command) (interface{}, error) {
	return s.elementCommand(ctx, cmd, http.MethodGet, "/enabled", nil)
}

// setValue sends both "text" and "value" so either server dialect accepts it.
func (s *Session) setValue(ctx context.Context, cmd driver.Command) (interface{}, error) {
	text := cmd.StringParam("text")
	value := cmd.Param("value")
	if text == "" {
		if parts, ok := value.([]interface{}); ok {
			var b strings.Builder
			for _, p := range parts {
				if ps, ok := p.(string); ok {
					b.WriteString(ps)
				}
			}
			text = b.String()
		}
	}
	if value == nil {
		value = strings.Split(text, "")
	}
	return s.elementCommand(ctx, cmd, http.MethodPost, "/value",
		map[string]interface{}{"text": text, "value": value})
}

func (s *Session) clear(ctx context.Context, cmd driver.Command) (interface{}, error) {
	id, err := s.elementID(cmd)
	if err != nil {
		return nil, err
	}
	return s.commanderFor(id).Command(ctx, elementPath(id, "/clear"), http.MethodPost,
		map[string]interface{}{"element": id})
}
