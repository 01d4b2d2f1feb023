package session

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
)

// MethodParams lists the parameter names a custom command accepts.
type MethodParams struct {
	Required []string `json:"required,omitempty"`
	Optional []string `json:"optional,omitempty"`
}

// ExecuteMethod maps a public custom command to its implementation.
type ExecuteMethod struct {
	Command string       `json:"command"`
	Params  MethodParams `json:"params"`
}

// Implementation selectors.
const (
	cmdDoubleClick       = "doubleClick"
	cmdWaitForVisible    = "waitForElementToBeVisible"
	cmdWaitForAbsent     = "waitForElementToBeGone"
	cmdScrollTillVisible = "scrollTillVisible"
	cmdLongPress         = "longPress"
	cmdDragAndDrop       = "dragAndDrop"
	cmdLaunchApp         = "mobilelaunchApp"
	cmdInjectImage       = "injectImage"
	cmdActivateImage     = "activateInjectedImage"
	cmdRenderTree        = "renderTree"
)

// ExecuteMethods is the custom command table reachable through
// execute("flutter: <name>", [params]).
var ExecuteMethods = map[string]ExecuteMethod{
	"doubleClick": {
		Command: cmdDoubleClick,
		Params:  MethodParams{Optional: []string{"origin", "offset", "locator"}},
	},
	"waitForVisible": {
		Command: cmdWaitForVisible,
		Params:  MethodParams{Optional: []string{"element", "locator", "timeout"}},
	},
	"waitForAbsent": {
		Command: cmdWaitForAbsent,
		Params:  MethodParams{Optional: []string{"element", "locator", "timeout"}},
	},
	"scrollTillVisible": {
		Command: cmdScrollTillVisible,
		Params: MethodParams{Optional: []string{
			"finder", "scrollView", "delta", "maxScrolls",
			"settleBetweenScrollsTimeout", "dragDuration", "scrollDirection",
		}},
	},
	"longPress": {
		Command: cmdLongPress,
		Params:  MethodParams{Optional: []string{"origin", "offset", "locator"}},
	},
	"dragAndDrop": {
		Command: cmdDragAndDrop,
		Params:  MethodParams{Required: []string{"source", "target"}},
	},
	"launchApp": {
		Command: cmdLaunchApp,
		Params: MethodParams{
			Required: []string{"appId"},
			Optional: []string{"arguments", "environment"},
		},
	},
	"injectImage": {
		Command: cmdInjectImage,
		Params:  MethodParams{Required: []string{"base64Image"}},
	},
	"activateInjectedImage": {
		Command: cmdActivateImage,
		Params:  MethodParams{Required: []string{"imageId"}},
	},
	"renderTree": {
		Command: cmdRenderTree,
		Params:  MethodParams{Optional: []string{"widgetType", "text", "key"}},
	},
}

// MethodNames returns the custom command names in order.
func MethodNames() []string {
	names := make([]string, 0, len(ExecuteMethods))
	for name := range ExecuteMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Offset is a point relative to an element or the screen.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GestureRequest carries doubleClick and longPress. Origin and Locator
// are relayed to the Flutter server as the client sent them.
type GestureRequest struct {
	Origin  interface{}     `json:"origin,omitempty"`
	Offset  *Offset         `json:"offset,omitempty"`
	Locator json.RawMessage `json:"locator,omitempty"`
}

// WaitRequest carries waitForVisible and waitForAbsent.
type WaitRequest struct {
	Element interface{}     `json:"element,omitempty"`
	Locator json.RawMessage `json:"locator,omitempty"`
	Timeout *float64        `json:"timeout,omitempty"`
}

// ScrollRequest carries scrollTillVisible.
type ScrollRequest struct {
	Finder                      json.RawMessage `json:"finder,omitempty"`
	ScrollView                  interface{}     `json:"scrollView,omitempty"`
	Delta                       *float64        `json:"delta,omitempty"`
	MaxScrolls                  *int            `json:"maxScrolls,omitempty"`
	SettleBetweenScrollsTimeout *float64        `json:"settleBetweenScrollsTimeout,omitempty"`
	DragDuration                *float64        `json:"dragDuration,omitempty"`
	ScrollDirection             string          `json:"scrollDirection,omitempty"`
}

// DragAndDropRequest carries dragAndDrop.
type DragAndDropRequest struct {
	Source interface{} `json:"source"`
	Target interface{} `json:"target"`
}

// LaunchAppRequest carries launchApp.
type LaunchAppRequest struct {
	AppID       string            `json:"appId"`
	Arguments   []string          `json:"arguments,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
}

// InjectImageRequest carries injectImage.
type InjectImageRequest struct {
	Base64Image string `json:"base64Image"`
}

// ActivateImageRequest carries activateInjectedImage.
type ActivateImageRequest struct {
	ImageID string `json:"imageId"`
}

// RenderTreeRequest carries renderTree filters.
type RenderTreeRequest struct {
	WidgetType string `json:"widgetType,omitempty"`
	Text       string `json:"text,omitempty"`
	Key        string `json:"key,omitempty"`
}

// checkRequired fails on the first absent required parameter. A JSON null
// counts as absent.
func checkRequired(name string, m ExecuteMethod, params map[string]interface{}) error {
	for _, key := range m.Params.Required {
		if v, ok := params[key]; !ok || v == nil {
			return core.ErrMissingParameter.
				WithMessagef("%s requires parameter %q", name, key).
				WithDetails(map[string]interface{}{"method": name, "parameter": key})
		}
	}
	return nil
}

// decodeParams copies the accepted parameters of m into req.
func decodeParams(name string, m ExecuteMethod, params map[string]interface{}, req interface{}) error {
	accepted := make(map[string]interface{}, len(params))
	for _, key := range append(append([]string{}, m.Params.Required...), m.Params.Optional...) {
		if v, ok := params[key]; ok {
			accepted[key] = v
		}
	}
	raw, err := json.Marshal(accepted)
	if err != nil {
		return core.ErrInvalidParameter.WithMessagef("%s: cannot encode parameters", name).WithCause(err)
	}
	if err := json.Unmarshal(raw, req); err != nil {
		return core.ErrInvalidParameter.WithMessagef("%s: malformed parameters", name).WithCause(err)
	}
	return nil
}

// ExecuteMethod runs a custom command by its public name.
func (s *Session) ExecuteMethod(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return nil, core.ErrNoSuchSession
	}
	return s.executeMethod(ctx, name, params)
}

func (s *Session) executeMethod(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	m, ok := ExecuteMethods[name]
	if !ok {
		return nil, core.ErrUnknownMethod.WithMessagef("unknown custom command %q", name).
			WithDetails(map[string]interface{}{"available": MethodNames()})
	}
	if err := checkRequired(name, m, params); err != nil {
		return nil, err
	}

	switch m.Command {
	case cmdDoubleClick, cmdLongPress:
		var req GestureRequest
		if err := decodeParams(name, m, params, &req); err != nil {
			return nil, err
		}
		if m.Command == cmdDoubleClick {
			return s.doubleClick(ctx, req)
		}
		return s.longPress(ctx, req)
	case cmdWaitForVisible, cmdWaitForAbsent:
		var req WaitRequest
		if err := decodeParams(name, m, params, &req); err != nil {
			return nil, err
		}
		if m.Command == cmdWaitForVisible {
			return s.waitForVisible(ctx, req)
		}
		return s.waitForAbsent(ctx, req)
	case cmdScrollTillVisible:
		var req ScrollRequest
		if err := decodeParams(name, m, params, &req); err != nil {
			return nil, err
		}
		return s.scrollTillVisible(ctx, req)
	case cmdDragAndDrop:
		var req DragAndDropRequest
		if err := decodeParams(name, m, params, &req); err != nil {
			return nil, err
		}
		return s.dragAndDrop(ctx, req)
	case cmdLaunchApp:
		var req LaunchAppRequest
		if err := decodeParams(name, m, params, &req); err != nil {
			return nil, err
		}
		return s.launchApp(ctx, req)
	case cmdInjectImage:
		var req InjectImageRequest
		if err := decodeParams(name, m, params, &req); err != nil {
			return nil, err
		}
		return s.injectImage(ctx, req)
	case cmdActivateImage:
		var req ActivateImageRequest
		if err := decodeParams(name, m, params, &req); err != nil {
			return nil, err
		}
		return s.activateInjectedImage(ctx, req)
	case cmdRenderTree:
		var req RenderTreeRequest
		if err := decodeParams(name, m, params, &req); err != nil {
			return nil, err
		}
		return s.renderTree(ctx, req)
	}
	return nil, core.ErrUnknownMethod.WithMessagef("no implementation for %s", m.Command)
}
