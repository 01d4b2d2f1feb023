package session

import (
	"context"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/caps"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
)

// MobileLaunchApp launches (iOS) or activates (other platforms) appID, waits
// for its Flutter server and opens a fresh remote session on it.
func (s *Session) MobileLaunchApp(ctx context.Context, appID string, args []string, env map[string]string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return nil, core.ErrNoSuchSession
	}
	return s.launchApp(ctx, LaunchAppRequest{AppID: appID, Arguments: args, Environment: env})
}

func (s *Session) launchApp(ctx context.Context, req LaunchAppRequest) (interface{}, error) {
	log := logger.WithSession(s.id)
	s.context.Reset()

	var (
		resp interface{}
		err  error
	)
	if s.target.IsIOS() {
		arguments := append(append([]string{}, req.Arguments...), caps.FlutterServerPortArg(s.launchPort()))
		launch := map[string]interface{}{
			"bundleId":  req.AppID,
			"arguments": arguments,
		}
		if req.Environment != nil {
			launch["environment"] = req.Environment
		}
		log.Infof("Launching %s with arguments %v", req.AppID, arguments)
		resp, err = s.platform.Execute(ctx, "mobile: launchApp", []interface{}{launch})
	} else {
		log.Infof("Activating %s", req.AppID)
		resp, err = s.platform.Execute(ctx, "mobile: activateApp", []interface{}{
			map[string]interface{}{"appId": req.AppID},
		})
	}
	if err != nil {
		return nil, err
	}

	if err := s.waitReady(ctx, req.AppID); err != nil {
		return nil, err
	}

	// The restarted app has no remote session; the port binding still holds.
	s.flutter = s.opts.NewProxy(s.host, s.port)
	if err := s.handshake(ctx, s.platform.OriginalCaps()); err != nil {
		return nil, err
	}
	return resp, nil
}

// launchPort is the port the app binds on the device.
func (s *Session) launchPort() int {
	if port, ok := s.caps.FlutterSystemPort(); ok {
		return port
	}
	if s.binding != nil {
		return s.binding.Remote
	}
	return s.opts.DevicePort
}
