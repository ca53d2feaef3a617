package config

import (
	"fmt"
	"strings"
)

// SplitAliasPath splits a CLI positional argument of shape "ALIAS:/PATH"
// into its alias and path components. A bare path with no colon-separated
// alias prefix is rejected: every transfer endpoint must name a configured
// alias.
func SplitAliasPath(arg string) (alias, path string, err error) {
	idx := strings.Index(arg, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("config: %q is not of the form ALIAS:/PATH", arg)
	}
	return arg[:idx], arg[idx+1:], nil
}
