package enums

import (
	"fmt"
	"strings"
)

// CodeMode selects how a listing sources redemption codes.
type CodeMode string

const (
	CodeModeFixedPool        CodeMode = "fixed_pool"
	CodeModeGenerateOnDemand CodeMode = "generate_on_demand"
)

var validCodeModes = []CodeMode{
	CodeModeFixedPool,
	CodeModeGenerateOnDemand,
}

func (m CodeMode) String() string {
	return string(m)
}

func (m CodeMode) IsValid() bool {
	for _, candidate := range validCodeModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseCodeMode accepts case-insensitive input.
func ParseCodeMode(value string) (CodeMode, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validCodeModes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid code mode %q", value)
}
