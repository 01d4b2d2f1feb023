// Package simulator classifies iOS device identifiers as simulators via simctl.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
)

// SimulatorDevice represents an available iOS simulator from simctl list.
type SimulatorDevice struct {
	Name        string // e.g., "iPhone 15 Pro"
	UDID        string
	Runtime     string // e.g., "com.apple.CoreSimulator.SimRuntime.iOS-17-2"
	OSVersion   string // e.g., "17.2" (extracted from Runtime)
	State       string // "Shutdown", "Booted", etc.
	IsAvailable bool
}

// simctlDevicesOutput represents the JSON output from xcrun simctl list devices.
type simctlDevicesOutput struct {
	Devices map[string][]simctlDevice `json:"devices"`
}

type simctlDevice struct {
	Name        string `json:"name"`
	UDID        string `json:"udid"`
	State       string `json:"state"`
	IsAvailable bool   `json:"isAvailable"`
}

// listOutput runs simctl; replaced in tests.
var listOutput = func(ctx context.Context) ([]byte, error) {
	if _, err := exec.LookPath("xcrun"); err != nil {
		return nil, fmt.Errorf("xcrun not found; install Xcode Command Line Tools: xcode-select --install")
	}
	return exec.CommandContext(ctx, "xcrun", "simctl", "list", "devices", "available", "-j").Output()
}

// ListSimulators returns all available iOS simulators.
func ListSimulators(ctx context.Context) ([]SimulatorDevice, error) {
	output, err := listOutput(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list simulators: %w", err)
	}
	sims, err := ParseDevices(output)
	if err != nil {
		return nil, err
	}
	logger.Debug("Found %d available simulators", len(sims))
	return sims, nil
}

// ParseDevices decodes `simctl list devices -j` output, keeping available devices.
func ParseDevices(output []byte) ([]SimulatorDevice, error) {
	var data simctlDevicesOutput
	if err := json.Unmarshal(output, &data); err != nil {
		return nil, fmt.Errorf("failed to parse simctl output: %w", err)
	}

	var sims []SimulatorDevice
	for runtime, devices := range data.Devices {
		osVersion := extractOSVersion(runtime)
		for _, dev := range devices {
			if !dev.IsAvailable {
				continue
			}
			sims = append(sims, SimulatorDevice{
				Name:        dev.Name,
				UDID:        dev.UDID,
				Runtime:     runtime,
				OSVersion:   osVersion,
				State:       dev.State,
				IsAvailable: dev.IsAvailable,
			})
		}
	}
	return sims, nil
}

// IsSimulator checks if a UDID belongs to a known simulator. Hosts without
// simctl have no simulators, so a listing failure answers false.
func IsSimulator(ctx context.Context, udid string) bool {
	sims, err := ListSimulators(ctx)
	if err != nil {
		logger.Debug("simulator lookup for %s failed: %v", udid, err)
		return false
	}
	for _, sim := range sims {
		if strings.EqualFold(sim.UDID, udid) {
			return true
		}
	}
	return false
}

// extractOSVersion extracts version from runtime string.
// e.g., "com.apple.CoreSimulator.SimRuntime.iOS-17-2" -> "17.2"
func extractOSVersion(runtime string) string {
	for _, prefix := range []string{"iOS-", "watchOS-", "tvOS-", "xrOS-"} {
		if idx := strings.LastIndex(runtime, prefix); idx != -1 {
			return strings.ReplaceAll(runtime[idx+len(prefix):], "-", ".")
		}
	}
	return ""
}
