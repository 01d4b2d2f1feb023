// Package device provides Android device access via ADB.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes a binary and returns its stdout and stderr.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //#nosec G204 -- adb path resolved via LookPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// AndroidDevice is one device addressed by serial through adb.
type AndroidDevice struct {
	serial  string
	adbPath string
	run     Runner
}

// Option configures an AndroidDevice.
type Option func(*AndroidDevice)

// WithRunner replaces the command runner (tests).
func WithRunner(r Runner) Option {
	return func(d *AndroidDevice) { d.run = r }
}

// WithADBPath skips the PATH lookup.
func WithADBPath(path string) Option {
	return func(d *AndroidDevice) { d.adbPath = path }
}

// New creates an AndroidDevice for the given serial. An empty serial lets
// adb pick the only connected device.
func New(serial string, opts ...Option) (*AndroidDevice, error) {
	d := &AndroidDevice{serial: serial, run: ExecRunner}
	for _, opt := range opts {
		opt(d)
	}
	if d.adbPath == "" {
		path, err := findADB()
		if err != nil {
			return nil, err
		}
		d.adbPath = path
	}
	return d, nil
}

// Serial returns the device serial number.
func (d *AndroidDevice) Serial() string {
	return d.serial
}

// CommandError is a failed adb invocation.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("adb %s: %v: %s", strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Output))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsAddressInUse reports whether adb failed because the local port is taken.
func IsAddressInUse(err error) bool {
	var ce *CommandError
	if !errors.As(err, &ce) {
		return false
	}
	out := strings.ToLower(ce.Output)
	return strings.Contains(out, "address already in use") || strings.Contains(out, "cannot bind")
}

// Shell executes a shell command on the device.
func (d *AndroidDevice) Shell(ctx context.Context, cmd string) (string, error) {
	return d.adb(ctx, "shell", cmd)
}

// Forward creates a port forward from local to device.
func (d *AndroidDevice) Forward(ctx context.Context, localPort, remotePort int) error {
	_, err := d.adb(ctx, "forward", fmt.Sprintf("tcp:%d", localPort), fmt.Sprintf("tcp:%d", remotePort))
	return err
}

// RemoveForward removes a port forward.
func (d *AndroidDevice) RemoveForward(ctx context.Context, localPort int) error {
	_, err := d.adb(ctx, "forward", "--remove", fmt.Sprintf("tcp:%d", localPort))
	return err
}

// ForwardRule is one line of `adb forward --list`.
type ForwardRule struct {
	Serial string
	Local  int
	Remote int
}

// ListForwards returns the tcp forwards held for this device.
func (d *AndroidDevice) ListForwards(ctx context.Context) ([]ForwardRule, error) {
	out, err := d.adb(ctx, "forward", "--list")
	if err != nil {
		return nil, err
	}

	var rules []ForwardRule
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Fields(line)
		if len(parts) != 3 {
			continue
		}
		if d.serial != "" && parts[0] != d.serial {
			continue
		}
		local, ok1 := tcpPort(parts[1])
		remote, ok2 := tcpPort(parts[2])
		if !ok1 || !ok2 {
			continue
		}
		rules = append(rules, ForwardRule{Serial: parts[0], Local: local, Remote: remote})
	}
	return rules, nil
}

// APILevel returns ro.build.version.sdk.
func (d *AndroidDevice) APILevel(ctx context.Context) (int, error) {
	out, err := d.Shell(ctx, "getprop ro.build.version.sdk")
	if err != nil {
		return 0, err
	}
	level, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected sdk value %q: %w", strings.TrimSpace(out), err)
	}
	return level, nil
}

func tcpPort(spec string) (int, bool) {
	if !strings.HasPrefix(spec, "tcp:") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(spec, "tcp:"))
	return n, err == nil
}

// adb executes an ADB command.
func (d *AndroidDevice) adb(ctx context.Context, args ...string) (string, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	cmdArgs = append(cmdArgs, args...)

	stdout, stderr, err := d.run(ctx, d.adbPath, cmdArgs...)
	if err != nil {
		output := string(stderr)
		if output == "" {
			output = string(stdout)
		}
		return "", &CommandError{Args: args, Output: output, Err: err}
	}

	return string(stdout), nil
}

// findADB locates the ADB binary.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK is installed")
}
