package portfwd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/danielpaulus/go-ios/ios"
	"github.com/danielpaulus/go-ios/ios/forward"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
)

// Relay is a running local-to-device tunnel.
type Relay interface {
	Close() error
}

// RelayOpener starts a tunnel from localPort on the host to devicePort on the device.
type RelayOpener func(ctx context.Context, udid string, localPort, devicePort int) (Relay, error)

// IOSTunnel forwards to real iOS devices over usbmux. Each binding owns one relay.
type IOSTunnel struct {
	open      RelayOpener
	available func(port int) bool

	mu     sync.Mutex
	relays map[int]Relay
}

// NewIOSTunnel creates a tunnel forwarder using the given relay backend.
func NewIOSTunnel(open RelayOpener) *IOSTunnel {
	return &IOSTunnel{open: open, available: Available, relays: make(map[int]Relay)}
}

func (t *IOSTunnel) Name() string { return "ios-tunnel" }

// Establish starts a relay. A local port that cannot be bound is reported
// as core.ErrPortUnavailable before any relay is started.
func (t *IOSTunnel) Establish(ctx context.Context, udid string, localPort, devicePort int) (Binding, error) {
	b := Binding{Local: localPort, Remote: devicePort, UDID: udid}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.relays[localPort]; ok {
		return Binding{}, core.ErrPortUnavailable.WithMessagef("local port %d already relays to a device", localPort)
	}
	if !t.available(localPort) {
		return Binding{}, core.ErrPortUnavailable.WithMessagef("local port %d is already in use", localPort)
	}

	relay, err := t.open(ctx, udid, localPort, devicePort)
	if err != nil {
		return Binding{}, core.ErrPortBinding.WithMessagef("failed to open tunnel %s", b).WithCause(err)
	}
	t.relays[localPort] = relay
	logger.Info("Tunnel open %s", b)
	return b, nil
}

// Release closes the relay for b. Later calls for the same binding do nothing.
func (t *IOSTunnel) Release(_ context.Context, b Binding) error {
	t.mu.Lock()
	relay, ok := t.relays[b.Local]
	delete(t.relays, b.Local)
	t.mu.Unlock()

	if !ok {
		return nil
	}
	if err := relay.Close(); err != nil {
		return core.ErrPortBinding.WithMessagef("failed to close tunnel %s", b).WithCause(err)
	}
	logger.Info("Tunnel closed %s", b)
	return nil
}

// GoIOSRelay opens an in-process usbmux forward with go-ios.
func GoIOSRelay(_ context.Context, udid string, localPort, devicePort int) (Relay, error) {
	entry, err := ios.GetDevice(udid)
	if err != nil {
		return nil, fmt.Errorf("device %s not found on usbmux: %w", udid, err)
	}
	listener, err := forward.Forward(entry, uint16(localPort), uint16(devicePort))
	if err != nil {
		return nil, err
	}
	return listener, nil
}

// iproxyReadyTimeout bounds how long a fresh iproxy gets to start listening.
var iproxyReadyTimeout = 3 * time.Second

// IProxyRelay runs `iproxy LOCAL:DEVICE -u UDID` from libimobiledevice.
func IProxyRelay(ctx context.Context, udid string, localPort, devicePort int) (Relay, error) {
	path, err := exec.LookPath("iproxy")
	if err != nil {
		return nil, fmt.Errorf("iproxy not found\nHint: Install libimobiledevice with 'brew install libimobiledevice'")
	}

	// Not bound to ctx: the relay outlives the request that created it.
	cmd := exec.Command(path, strconv.Itoa(localPort)+":"+strconv.Itoa(devicePort), "-u", udid) //#nosec G204 -- fixed binary, numeric ports
	cmd.Stdout = logger.GetWriter()
	cmd.Stderr = logger.GetWriter()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("iproxy failed to start: %w", err)
	}

	p := &iproxyProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	if err := p.waitListening(ctx, localPort); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

type iproxyProcess struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
	once    sync.Once
}

func (p *iproxyProcess) waitListening(ctx context.Context, port int) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	deadline := time.Now().Add(iproxyReadyTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-p.done:
			return fmt.Errorf("iproxy exited early: %v", p.waitErr)
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond); err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("iproxy did not listen on %s within %v", addr, iproxyReadyTimeout)
}

func (p *iproxyProcess) Close() error {
	var err error
	p.once.Do(func() {
		if p.cmd.Process == nil {
			return
		}
		if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = killErr
		}
		<-p.done
	})
	return err
}
