package eks

import (
	"regexp"
	"strings"

	"github.com/lex00/eks-gitops-go/intrinsics"
)

// Token returns the marker that stands for a deploy time value inside a
// manifest. Bind the name on the Kubectl that applies the manifest.
func Token(name string) string {
	return "#{" + name + "}"
}

var tokenPattern = regexp.MustCompile(`#\{([A-Za-z][A-Za-z0-9]*)\}`)

// substitute turns a serialized manifest into a template property. Without
// bound tokens the string is returned as is. Otherwise literal "${" is
// escaped for Fn::Sub and each bound marker becomes a Fn::Sub variable.
// Markers that are not bound are left untouched.
func substitute(s string, vars map[string]any) any {
	used := usedTokens(s, vars)
	if len(used) == 0 {
		return s
	}
	out := strings.ReplaceAll(s, "${", "${!")
	out = tokenPattern.ReplaceAllStringFunc(out, func(m string) string {
		name := tokenPattern.FindStringSubmatch(m)[1]
		if _, ok := used[name]; ok {
			return "${" + name + "}"
		}
		return m
	})
	return intrinsics.SubWithMap{String: out, Variables: used}
}

// preview replaces bound markers with ${Name} so the document reads like the
// Fn::Sub input without the escaping.
func preview(s string, vars map[string]any) string {
	return tokenPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := tokenPattern.FindStringSubmatch(m)[1]
		if _, ok := vars[name]; ok {
			return "${" + name + "}"
		}
		return m
	})
}

func usedTokens(s string, vars map[string]any) map[string]any {
	var used map[string]any
	for _, m := range tokenPattern.FindAllStringSubmatch(s, -1) {
		v, ok := vars[m[1]]
		if !ok {
			continue
		}
		if used == nil {
			used = make(map[string]any)
		}
		used[m[1]] = v
	}
	return used
}
