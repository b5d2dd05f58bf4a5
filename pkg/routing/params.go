package routing

import (
	"strconv"
	"strings"
)

// ParamKind is the type a query parameter's value is bound to.
type ParamKind int

const (
	ParamString ParamKind = iota
	ParamInteger
)

// ParamSpec declares one expected query parameter.
type ParamSpec struct {
	Key      string
	Kind     ParamKind
	Optional bool
}

// ParamValue holds a bound query parameter's value, present only if the
// binding succeeded.
type ParamValue struct {
	String  string
	Integer int64
	Present bool
}

// parseParams binds raw (a "key=value&key2=value2" query string) against
// specs, the same two-pass way the reference implementation's
// parse_params does: split on '&', then for each candidate spec not yet
// bound, match by key and convert by declared kind. A malformed integer
// value simply leaves that parameter unbound rather than failing parsing
// outright. The call fails when raw is empty (even if every spec is
// optional) or when a required parameter is left unbound.
func parseParams(raw string, specs []ParamSpec) (map[string]ParamValue, error) {
	values := make(map[string]ParamValue, len(specs))

	if raw == "" {
		return nil, ErrInvalidRequest
	}

	{
		for _, pair := range strings.Split(raw, "&") {
			if pair == "" {
				continue
			}
			eq := strings.IndexByte(pair, '=')
			if eq < 0 || eq == len(pair)-1 {
				continue
			}
			key, val := pair[:eq], pair[eq+1:]

			for _, spec := range specs {
				if _, already := values[spec.Key]; already {
					continue
				}
				if spec.Key != key {
					continue
				}
				switch spec.Kind {
				case ParamString:
					values[spec.Key] = ParamValue{String: val, Present: true}
				case ParamInteger:
					n, err := strconv.ParseInt(val, 10, 64)
					if err == nil {
						values[spec.Key] = ParamValue{Integer: n, Present: true}
					}
				}
			}
		}
	}

	for _, spec := range specs {
		if !spec.Optional && !values[spec.Key].Present {
			return nil, ErrInvalidRequest
		}
	}

	return values, nil
}
