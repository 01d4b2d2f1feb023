package session

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver/mock"
)

func flutterScript(t *testing.T, s *Session, name string, params map[string]interface{}) (interface{}, error) {
	t.Helper()
	return run(t, s, "execute", map[string]interface{}{
		"script": "flutter: " + name,
		"args":   []interface{}{params},
	}, nil)
}

func TestExecuteMethods_Table(t *testing.T) {
	want := map[string]string{
		"doubleClick":           "doubleClick",
		"waitForVisible":        "waitForElementToBeVisible",
		"waitForAbsent":         "waitForElementToBeGone",
		"scrollTillVisible":     "scrollTillVisible",
		"longPress":             "longPress",
		"dragAndDrop":           "dragAndDrop",
		"launchApp":             "mobilelaunchApp",
		"injectImage":           "injectImage",
		"activateInjectedImage": "activateInjectedImage",
		"renderTree":            "renderTree",
	}
	assert.Len(t, ExecuteMethods, len(want))
	for name, command := range want {
		m, ok := ExecuteMethods[name]
		if assert.True(t, ok, name) {
			assert.Equal(t, command, m.Command)
		}
	}
	assert.Equal(t, []string{"source", "target"}, ExecuteMethods["dragAndDrop"].Params.Required)
	assert.Equal(t, []string{"appId"}, ExecuteMethods["launchApp"].Params.Required)
	assert.Equal(t, "activateInjectedImage", MethodNames()[0])
}

func TestExecuteMethod_MissingRequiredMakesNoCall(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]interface{}
	}{
		{"dragAndDrop", map[string]interface{}{"source": elementRef("a")}},
		{"dragAndDrop", map[string]interface{}{"source": elementRef("a"), "target": nil}},
		{"launchApp", map[string]interface{}{"arguments": []interface{}{"-x"}}},
		{"injectImage", nil},
		{"activateInjectedImage", map[string]interface{}{"id": "wrong-key"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, s := startSession(t, mock.Config{APILevel: 34}, androidCaps())
			before := len(f.server.Requests())
			probes := f.server.Probes()

			_, err := flutterScript(t, s, tt.name, tt.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrMissingParameter)
			assert.Len(t, f.server.Requests(), before)
			assert.Equal(t, probes, f.server.Probes())
			assert.Zero(t, f.platform.CallCount("Execute"))
		})
	}
}

func TestExecuteMethod_Unknown(t *testing.T) {
	_, s := startSession(t, mock.Config{}, androidCaps())
	_, err := flutterScript(t, s, "pinch", nil)
	assert.ErrorIs(t, err, core.ErrUnknownMethod)
}

func TestExecuteMethod_MalformedParameter(t *testing.T) {
	_, s := startSession(t, mock.Config{}, androidCaps())
	_, err := flutterScript(t, s, "activateInjectedImage", map[string]interface{}{"imageId": 12})
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
}

func TestExecuteMethod_Endpoints(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]interface{}
		suffix string
		field  string
	}{
		{"doubleClick", map[string]interface{}{"origin": elementRef("e1")}, "/appium/gestures/double_click", "origin"},
		{"longPress", map[string]interface{}{"offset": map[string]interface{}{"x": 10, "y": 20}}, "/appium/gestures/long_press", "offset"},
		{"waitForVisible", map[string]interface{}{"locator": map[string]interface{}{"using": "key", "value": "k"}, "timeout": 500}, "/element/wait/visible", "locator"},
		{"waitForAbsent", map[string]interface{}{"element": elementRef("e1")}, "/element/wait/absent", "element"},
		{"dragAndDrop", map[string]interface{}{"source": elementRef("a"), "target": elementRef("b")}, "/appium/gestures/drag_drop", "target"},
		{"activateInjectedImage", map[string]interface{}{"imageId": "img-1"}, "/activate_inject_image", "imageId"},
		{"renderTree", map[string]interface{}{"widgetType": "Text"}, "/element/render_tree", "widgetType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, s := startSession(t, mock.Config{}, androidCaps())

			_, err := flutterScript(t, s, tt.name, tt.params)
			require.NoError(t, err)
			reqs := f.server.RequestsTo(tt.suffix)
			require.Len(t, reqs, 1)
			assert.Equal(t, http.MethodPost, reqs[0].Method)
			assert.Equal(t, mock.SessionPath(tt.suffix), reqs[0].Path)
			assert.Contains(t, reqs[0].Body, tt.field)
		})
	}
}

func TestExecuteMethod_LocatorsRelayedVerbatim(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		value  map[string]interface{}
		suffix string
	}{
		{"doubleClick", "locator", map[string]interface{}{"strategy": "key", "selector": "btn"}, "/appium/gestures/double_click"},
		{"longPress", "locator", map[string]interface{}{"using": "text", "value": "Hold"}, "/appium/gestures/long_press"},
		{"waitForVisible", "locator", map[string]interface{}{"using": "key", "value": "btn", "context": "parent-1"}, "/element/wait/visible"},
		{"waitForAbsent", "locator", map[string]interface{}{
			"using": "descendant",
			"value": map[string]interface{}{"of": map[string]interface{}{"using": "key", "value": "list"}, "matching": "row"},
		}, "/element/wait/absent"},
		{"scrollTillVisible", "finder", map[string]interface{}{"strategy": "text", "selector": "Row 40", "skipOffstage": false}, "/appium/gestures/scroll_till_visible"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, s := startSession(t, mock.Config{}, androidCaps())

			_, err := flutterScript(t, s, tt.name, map[string]interface{}{tt.key: tt.value})
			require.NoError(t, err)
			reqs := f.server.RequestsTo(tt.suffix)
			require.Len(t, reqs, 1)

			want, err := json.Marshal(tt.value)
			require.NoError(t, err)
			got, err := json.Marshal(reqs[0].Body[tt.key])
			require.NoError(t, err)
			assert.JSONEq(t, string(want), string(got))
		})
	}
}

func TestExecuteMethod_UndeclaredParamsDropped(t *testing.T) {
	f, s := startSession(t, mock.Config{}, androidCaps())

	_, err := flutterScript(t, s, "renderTree", map[string]interface{}{"text": "Hi", "depth": 3})
	require.NoError(t, err)
	body := f.server.RequestsTo("/element/render_tree")[0].Body
	assert.Equal(t, map[string]interface{}{"text": "Hi"}, body)
}

func TestScrollTillVisible_RegistersElement(t *testing.T) {
	f, s := startSession(t, mock.Config{}, androidCaps())
	f.server.Respond(http.MethodPost, mock.SessionPath("/appium/gestures/scroll_till_visible"), elementRef("s1"))

	got, err := flutterScript(t, s, "scrollTillVisible", map[string]interface{}{
		"finder":          map[string]interface{}{"using": "text", "value": "Row 40"},
		"scrollDirection": "down",
		"maxScrolls":      30,
	})
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = run(t, s, "click", nil, map[string]string{"elementId": "s1"})
	require.NoError(t, err)
	assert.Len(t, f.server.RequestsTo("/element/s1/click"), 1)
}

func TestInjectImage_AndroidPermissions(t *testing.T) {
	tests := []struct {
		level int
		want  []string
	}{
		{30, []string{"WRITE_EXTERNAL_STORAGE", "READ_EXTERNAL_STORAGE"}},
		{32, []string{"WRITE_EXTERNAL_STORAGE", "READ_EXTERNAL_STORAGE"}},
		{33, []string{"MANAGE_EXTERNAL_STORAGE"}},
		{34, []string{"MANAGE_EXTERNAL_STORAGE"}},
	}

	for _, tt := range tests {
		f, s := startSession(t, mock.Config{Target: core.TargetAndroid, APILevel: tt.level}, androidCaps())

		_, err := flutterScript(t, s, "injectImage", map[string]interface{}{"base64Image": "aGVsbG8="})
		require.NoError(t, err, "api %d", tt.level)

		grants := f.platform.Executed("mobile: changePermissions")
		require.Len(t, grants, len(tt.want), "api %d", tt.level)
		for i, args := range grants {
			opts := args[0].(map[string]interface{})
			assert.Equal(t, []string{tt.want[i]}, opts["permissions"])
			assert.Equal(t, "allow", opts["action"])
			assert.Equal(t, "appops", opts["target"])
		}
		reqs := f.server.RequestsTo("/inject_image")
		require.Len(t, reqs, 1)
		assert.Equal(t, "aGVsbG8=", reqs[0].Body["base64Image"])
	}
}

func TestInjectImage_IOSSkipsPermissions(t *testing.T) {
	f, s := startSession(t, mock.Config{Target: core.TargetIOSSimulator}, iosCaps(false))

	_, err := flutterScript(t, s, "injectImage", map[string]interface{}{"base64Image": "aGk="})
	require.NoError(t, err)
	assert.Zero(t, f.platform.CallCount("Execute"))
	assert.Len(t, f.server.RequestsTo("/inject_image"), 1)
}

func TestExecuteMethod_Public(t *testing.T) {
	f, s := startSession(t, mock.Config{}, androidCaps())

	_, err := s.ExecuteMethod(context.Background(), "renderTree", map[string]interface{}{"key": "root"})
	require.NoError(t, err)
	assert.Len(t, f.server.RequestsTo("/element/render_tree"), 1)
}
