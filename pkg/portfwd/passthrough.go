package portfwd

import "context"

// PassThrough serves targets that share the host network namespace
// (iOS simulators, Windows and Mac apps).
type PassThrough struct{}

// Establish returns the local port unchanged.
func (PassThrough) Establish(_ context.Context, udid string, localPort, devicePort int) (Binding, error) {
	return Binding{Local: localPort, Remote: devicePort, UDID: udid}, nil
}

// Release does nothing.
func (PassThrough) Release(context.Context, Binding) error { return nil }

func (PassThrough) Name() string { return "passthrough" }
