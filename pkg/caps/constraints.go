package caps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
)

// Kind is the value type a capability must have.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
)

// Constraint describes one recognized capability.
type Constraint struct {
	Kind     Kind     `json:"type"`
	Presence bool     `json:"presence,omitempty"`
	OneOf    []string `json:"inclusionCaseInsensitive,omitempty"`
}

// Constraints is the capability table exposed to the framework.
var Constraints = map[string]Constraint{
	KeyAVD:                        {Kind: KindString},
	KeyAutomationName:             {Kind: KindString, Presence: true},
	KeyPlatformName:               {Kind: KindString, Presence: true, OneOf: core.Platforms},
	KeyUDID:                       {Kind: KindString},
	KeyLaunchTimeout:              {Kind: KindNumber},
	KeyFlutterServerLaunchTimeout: {Kind: KindNumber},
	KeyFlutterSystemPort:          {Kind: KindNumber},
	KeyAddress:                    {Kind: KindString},
	KeyPackageName:                {Kind: KindString},
}

// Validate checks c against Constraints. Every violation is reported in one
// ErrCapability, keys in sorted order. Unknown keys are passed through.
func Validate(c Capabilities) error {
	keys := make([]string, 0, len(Constraints))
	for k := range Constraints {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var problems []string
	for _, key := range keys {
		if msg := check(key, Constraints[key], c); msg != "" {
			problems = append(problems, msg)
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return core.ErrCapability.
		WithMessage("invalid capabilities: " + strings.Join(problems, "; ")).
		WithDetails(map[string]interface{}{"problems": problems})
}

func check(key string, rule Constraint, c Capabilities) string {
	v, present := c[key]
	if !present || v == nil {
		if rule.Presence {
			return fmt.Sprintf("'%s' can't be blank", key)
		}
		return ""
	}

	switch rule.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("'%s' must be of type string", key)
		}
		if rule.Presence && s == "" {
			return fmt.Sprintf("'%s' can't be blank", key)
		}
		if len(rule.OneOf) > 0 && !containsFold(rule.OneOf, s) {
			return fmt.Sprintf("'%s' %s is not included in the list %v", key, s, rule.OneOf)
		}
	case KindNumber:
		if _, ok := toFloat(v); !ok {
			return fmt.Sprintf("'%s' must be of type number", key)
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("'%s' must be of type boolean", key)
		}
	}
	return ""
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
