package event

import (
	"strconv"
	"strings"
)

// CommandParamsInt parses the command parameters as int64. Empty parameters
// yield zero without error.
func (e Event) CommandParamsInt() (int64, error) {
	p := strings.TrimSpace(e.CommandParams())
	if p == "" {
		return 0, nil
	}
	return strconv.ParseInt(p, 10, 64)
}

// CommandParamsParts splits the command parameters using sep.
func (e Event) CommandParamsParts(sep string) ([]string, error) {
	p := e.CommandParams()
	if p == "" {
		return nil, strconv.ErrSyntax
	}
	return strings.Split(p, sep), nil
}

// CommandParamsTwoInt64 parses parameters like "3 7" into two int64 values.
func (e Event) CommandParamsTwoInt64(sep string) (int64, int64, error) {
	parts, err := e.CommandParamsParts(sep)
	if err != nil {
		return 0, 0, err
	}
	if len(parts) != 2 {
		return 0, 0, strconv.ErrSyntax
	}
	a, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}
