package portfwd

import (
	"context"
	"sync"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/device"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
)

// ADB is the slice of device.AndroidDevice the Android forwarder needs.
type ADB interface {
	Forward(ctx context.Context, localPort, remotePort int) error
	RemoveForward(ctx context.Context, localPort int) error
	ListForwards(ctx context.Context) ([]device.ForwardRule, error)
}

// Android forwards through `adb forward`.
type Android struct {
	adb ADB

	mu   sync.Mutex
	held map[int]int // local -> device
}

// NewAndroid creates an Android forwarder for one device.
func NewAndroid(adb ADB) *Android {
	return &Android{adb: adb, held: make(map[int]int)}
}

func (a *Android) Name() string { return "adb" }

// Establish runs adb forward. Re-establishing a mapping that is already in
// place, whether held here or reported by adb, is not an error.
func (a *Android) Establish(ctx context.Context, udid string, localPort, devicePort int) (Binding, error) {
	b := Binding{Local: localPort, Remote: devicePort, UDID: udid}

	a.mu.Lock()
	defer a.mu.Unlock()

	if remote, ok := a.held[localPort]; ok && remote == devicePort {
		logger.Debug("adb forward %s already held", b)
		return b, nil
	}

	if err := a.adb.Forward(ctx, localPort, devicePort); err != nil {
		if !device.IsAddressInUse(err) {
			return Binding{}, core.ErrPortBinding.WithMessagef("adb forward tcp:%d tcp:%d failed", localPort, devicePort).WithCause(err)
		}
		if !a.alreadyForwarded(ctx, localPort, devicePort) {
			return Binding{}, core.ErrPortUnavailable.WithMessagef("local port %d is already in use", localPort).WithCause(err)
		}
		logger.Info("adb forward %s already present, reusing", b)
	}

	a.held[localPort] = devicePort
	logger.Info("Forwarded %s", b)
	return b, nil
}

func (a *Android) alreadyForwarded(ctx context.Context, localPort, devicePort int) bool {
	rules, err := a.adb.ListForwards(ctx)
	if err != nil {
		logger.Debug("adb forward --list failed: %v", err)
		return false
	}
	for _, r := range rules {
		if r.Local == localPort && r.Remote == devicePort {
			return true
		}
	}
	return false
}

// Release removes the forward. Releasing an unknown or already released
// binding is a no-op.
func (a *Android) Release(ctx context.Context, b Binding) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.held[b.Local]; !ok {
		return nil
	}
	delete(a.held, b.Local)

	if err := a.adb.RemoveForward(ctx, b.Local); err != nil {
		return core.ErrPortBinding.WithMessagef("adb forward --remove tcp:%d failed", b.Local).WithCause(err)
	}
	logger.Info("Removed forward %s", b)
	return nil
}
