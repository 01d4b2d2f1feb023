package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/caps"
)

var capsCommand = &cli.Command{
	Name:  "caps",
	Usage: "Inspect session capabilities",
	Subcommands: []*cli.Command{
		{
			Name:      "validate",
			Usage:     "Check capabilities against the driver's constraints",
			ArgsUsage: "<file.json | inline JSON>",
			Description: `Accepts a bare capabilities object, a W3C new-session body, or a legacy
desiredCapabilities body. Prints the normalized capabilities on success.

Examples:
  flutter-driver caps validate caps.json
  flutter-driver caps validate '{"platformName":"Android","appium:automationName":"FlutterIntegration"}'`,
			Action: runCapsValidate,
		},
	},
}

func runCapsValidate(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one capabilities file or JSON object")
	}

	raw, err := loadCapabilities(c.Args().First())
	if err != nil {
		return err
	}
	resolved, err := parseCapabilities(raw)
	if err != nil {
		return err
	}
	if err := caps.Validate(resolved); err != nil {
		return err
	}

	out, err := json.MarshalIndent(resolved, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}

// loadCapabilities reads a JSON object from a file, or from src itself when
// it looks like inline JSON.
func loadCapabilities(src string) (map[string]interface{}, error) {
	data := []byte(src)
	if !strings.HasPrefix(strings.TrimSpace(src), "{") {
		var err error
		data, err = os.ReadFile(src) //#nosec G304 -- user-provided caps file
		if err != nil {
			return nil, fmt.Errorf("failed to read caps file: %w", err)
		}
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse caps JSON: %w", err)
	}
	return raw, nil
}

// parseCapabilities accepts session bodies as well as bare capability maps.
func parseCapabilities(raw map[string]interface{}) (caps.Capabilities, error) {
	_, w3c := raw["capabilities"]
	_, legacy := raw["desiredCapabilities"]
	if w3c || legacy {
		return caps.FromW3C(raw)
	}
	return caps.Normalize(raw), nil
}
