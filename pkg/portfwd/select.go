package portfwd

import (
	"fmt"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/config"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/device"
)

// Options supplies the backends Select wires into forwarders.
type Options struct {
	// ADB returns the adb handle for a device; defaults to device.New.
	ADB func(udid string) (ADB, error)
	// Tunnel is config.TunnelGoIOS or config.TunnelIProxy.
	Tunnel string
	// Relay overrides the tunnel backend (tests).
	Relay RelayOpener
}

// Select maps a target to its forwarding strategy:
//
//	Android        -> adb forward
//	iOS real       -> usbmux tunnel
//	iOS simulator  -> pass-through
//	Windows, Mac   -> pass-through
func Select(target core.Target, udid string, opts Options) (Forwarder, error) {
	switch target {
	case core.TargetAndroid:
		newADB := opts.ADB
		if newADB == nil {
			newADB = func(udid string) (ADB, error) { return device.New(udid) }
		}
		adb, err := newADB(udid)
		if err != nil {
			return nil, core.ErrPortBinding.WithMessage("adb is not available").WithCause(err)
		}
		return NewAndroid(adb), nil
	case core.TargetIOSReal:
		relay := opts.Relay
		if relay == nil {
			switch opts.Tunnel {
			case config.TunnelIProxy:
				relay = IProxyRelay
			case config.TunnelGoIOS, "":
				relay = GoIOSRelay
			default:
				return nil, fmt.Errorf("unknown iOS tunnel backend %q", opts.Tunnel)
			}
		}
		return NewIOSTunnel(relay), nil
	case core.TargetIOSSimulator, core.TargetWindows, core.TargetMac:
		return PassThrough{}, nil
	default:
		return nil, fmt.Errorf("no port forwarding strategy for target %s", target)
	}
}
