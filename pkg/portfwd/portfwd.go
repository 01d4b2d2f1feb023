// Package portfwd makes the in-app Flutter server reachable from the host.
package portfwd

import (
	"context"
	"fmt"
)

// Binding is one established local port to device port mapping.
type Binding struct {
	Local  int
	Remote int
	UDID   string
}

func (b Binding) String() string {
	return fmt.Sprintf("%s tcp:%d -> tcp:%d", b.UDID, b.Local, b.Remote)
}

// Forwarder establishes and releases port mappings for one device class.
// It never allocates ports: a local port already in use is reported as
// core.ErrPortUnavailable and the caller retries with a fresh one.
type Forwarder interface {
	Establish(ctx context.Context, udid string, localPort, devicePort int) (Binding, error)
	Release(ctx context.Context, b Binding) error
	Name() string
}
