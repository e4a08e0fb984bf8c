// Package modelresolver resolves property placeholders in a job definition tree
// before execution. Resolution is a single destructive, depth-first,
// left-to-right pass; each node kind has a dedicated resolver.
//
// Supported placeholders:
//
//	{name}                          submitted parameter, then inherited property
//	#{jobParameters['name']}        submitted parameter
//	#{jobProperties['name']}        inherited property
//	#{systemProperties['name']}     process environment
//	#{partitionPlan['name']}        partition plan property (partition resolvers only)
//	#{...}?:default;                default used when the expression is unresolved
//
// Unresolved placeholders are kept as literal text.
package modelresolver

import (
	"os"
	"regexp"
	"strings"

	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

const (
	operatorJobParameters    = "jobParameters"
	operatorJobProperties    = "jobProperties"
	operatorSystemProperties = "systemProperties"
	operatorPartitionPlan    = "partitionPlan"
)

var expressionPattern = regexp.MustCompile(`^\s*(\w+)\['([^']*)'\]\s*$`)

// substitutor performs placeholder substitution on one string.
type substitutor struct {
	partitioned bool
	planProps   map[string]string
	lookupEnv   func(string) (string, bool)
}

// replaceAll substitutes every placeholder in s using the given scopes.
func (s *substitutor) replaceAll(in string, submitted, parent map[string]string) string {
	if !strings.Contains(in, "{") {
		return in
	}
	var b strings.Builder
	b.Grow(len(in))
	i := 0
	for i < len(in) {
		switch {
		case strings.HasPrefix(in[i:], "#{"):
			end := strings.IndexByte(in[i+2:], '}')
			if end < 0 {
				b.WriteString(in[i:])
				return b.String()
			}
			closing := i + 2 + end
			expr := in[i+2 : closing]
			next := closing + 1

			def, hasDefault := "", false
			if strings.HasPrefix(in[next:], "?:") {
				if semi := strings.IndexByte(in[next+2:], ';'); semi >= 0 {
					def = in[next+2 : next+2+semi]
					hasDefault = true
					next = next + 2 + semi + 1
				}
			}

			val, ok, deferred := s.evaluate(expr, submitted, parent)
			switch {
			case ok:
				b.WriteString(val)
			case deferred:
				b.WriteString(in[i:next])
			case hasDefault:
				b.WriteString(s.replaceAll(def, submitted, parent))
			default:
				logger.Debugf("Property expression '#{%s}' could not be resolved; keeping it as literal text.", expr)
				b.WriteString(in[i:next])
			}
			i = next

		case in[i] == '{':
			end := strings.IndexByte(in[i+1:], '}')
			if end >= 0 {
				name := in[i+1 : i+1+end]
				if isPropertyName(name) {
					if v, ok := lookup(name, submitted, parent); ok {
						b.WriteString(v)
					} else {
						b.WriteString(in[i : i+end+2])
					}
					i += end + 2
					continue
				}
			}
			b.WriteByte('{')
			i++

		default:
			b.WriteByte(in[i])
			i++
		}
	}
	return b.String()
}

// evaluate resolves the body of a #{...} expression. deferred is true for
// partition plan references outside a partition resolver; they must survive
// untouched, default included, until the partition is resolved.
func (s *substitutor) evaluate(expr string, submitted, parent map[string]string) (val string, ok, deferred bool) {
	m := expressionPattern.FindStringSubmatch(expr)
	if m == nil {
		return "", false, false
	}
	operator, name := m[1], m[2]
	switch operator {
	case operatorJobParameters:
		val, ok = submitted[name]
	case operatorJobProperties:
		val, ok = parent[name]
	case operatorSystemProperties:
		val, ok = s.lookupEnv(name)
	case operatorPartitionPlan:
		if !s.partitioned {
			return "", false, true
		}
		val, ok = s.planProps[name]
	}
	return val, ok, false
}

func lookup(name string, submitted, parent map[string]string) (string, bool) {
	if v, ok := submitted[name]; ok {
		return v, true
	}
	v, ok := parent[name]
	return v, ok
}

func isPropertyName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}

func defaultLookupEnv() func(string) (string, bool) {
	return os.LookupEnv
}
