package session

import (
	"context"
	"net/http"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
)

// Android API level from which external storage access needs
// MANAGE_EXTERNAL_STORAGE instead of the legacy pair.
const manageStorageAPILevel = 33

func (s *Session) flutterCommand(ctx context.Context, suffix string, body interface{}) (interface{}, error) {
	return s.flutter.Command(ctx, sessionPath(suffix), http.MethodPost, body)
}

func (s *Session) doubleClick(ctx context.Context, req GestureRequest) (interface{}, error) {
	return s.flutterCommand(ctx, "/appium/gestures/double_click", req)
}

func (s *Session) longPress(ctx context.Context, req GestureRequest) (interface{}, error) {
	return s.flutterCommand(ctx, "/appium/gestures/long_press", req)
}

func (s *Session) waitForVisible(ctx context.Context, req WaitRequest) (interface{}, error) {
	return s.flutterCommand(ctx, "/element/wait/visible", req)
}

func (s *Session) waitForAbsent(ctx context.Context, req WaitRequest) (interface{}, error) {
	return s.flutterCommand(ctx, "/element/wait/absent", req)
}

func (s *Session) dragAndDrop(ctx context.Context, req DragAndDropRequest) (interface{}, error) {
	return s.flutterCommand(ctx, "/appium/gestures/drag_drop", req)
}

// scrollTillVisible returns the element scrolled into view, which is then
// owned by the Flutter server.
func (s *Session) scrollTillVisible(ctx context.Context, req ScrollRequest) (interface{}, error) {
	result, err := s.flutterCommand(ctx, "/appium/gestures/scroll_till_visible", req)
	if err != nil {
		return nil, err
	}
	s.elements.RegisterValue(result, s.flutter)
	return result, nil
}

// injectImage grants storage access first on Android.
func (s *Session) injectImage(ctx context.Context, req InjectImageRequest) (interface{}, error) {
	if s.target == core.TargetAndroid {
		if err := s.grantStorageAccess(ctx); err != nil {
			return nil, err
		}
	}
	return s.flutterCommand(ctx, "/inject_image", req)
}

func (s *Session) grantStorageAccess(ctx context.Context) error {
	level, err := s.platform.APILevel(ctx)
	if err != nil {
		return err
	}
	permissions := []string{"WRITE_EXTERNAL_STORAGE", "READ_EXTERNAL_STORAGE"}
	if level >= manageStorageAPILevel {
		permissions = []string{"MANAGE_EXTERNAL_STORAGE"}
	}
	for _, p := range permissions {
		logger.WithSession(s.id).Debugf("Granting %s (api %d)", p, level)
		_, err := s.platform.Execute(ctx, "mobile: changePermissions", []interface{}{
			map[string]interface{}{
				"permissions": []string{p},
				"action":      "allow",
				"target":      "appops",
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) activateInjectedImage(ctx context.Context, req ActivateImageRequest) (interface{}, error) {
	return s.flutterCommand(ctx, "/activate_inject_image", req)
}

func (s *Session) renderTree(ctx context.Context, req RenderTreeRequest) (interface{}, error) {
	return s.flutterCommand(ctx, "/element/render_tree", req)
}
