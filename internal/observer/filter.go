package observer

import (
	"strconv"
	"strings"
)

// FilterField is one rendered (possibly renamed) attribute of an
// ObservedObject, in filter-declaration order.
type FilterField struct {
	Key   string // emitted key, after any `name=alias` rename
	Value string
}

// Filter selects and renames the attributes an observer's sinks emit
// (spec §4.6: a comma-separated token list over
// x,y,z,size,id,uuid,region,count,action; `name=alias` renames the
// emitted key).
type Filter struct {
	tokens []filterToken
}

type filterToken struct {
	name  string
	alias string
}

// DefaultFilter emits every known field under its own name, for
// observers configured without an explicit filter.
func DefaultFilter() Filter {
	return ParseFilter("x,y,z,size,id,uuid,region,count,action")
}

// ParseFilter parses a comma-separated filter expression. Unknown
// tokens are kept verbatim and simply render empty, rather than
// rejected — an observer misconfigured with a stray field name should
// degrade, not break the whole pipeline.
func ParseFilter(expr string) Filter {
	var tokens []filterToken
	for _, tok := range strings.Split(expr, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		name, alias := tok, tok
		if eq := strings.IndexByte(tok, '='); eq >= 0 {
			name = strings.TrimSpace(tok[:eq])
			alias = strings.TrimSpace(tok[eq+1:])
		}
		tokens = append(tokens, filterToken{name: name, alias: alias})
	}
	return Filter{tokens: tokens}
}

// Project renders obj's attributes (plus the enclosing region name and
// count) through the filter, in declaration order.
func (f Filter) Project(obj ObservedObject, regionName string, count int) []FilterField {
	out := make([]FilterField, 0, len(f.tokens))
	for _, tok := range f.tokens {
		out = append(out, FilterField{Key: tok.alias, Value: f.render(tok.name, obj, regionName, count)})
	}
	return out
}

func (f Filter) render(name string, obj ObservedObject, regionName string, count int) string {
	switch name {
	case "x":
		return strconv.FormatFloat(obj.X, 'f', 1, 64)
	case "y":
		return strconv.FormatFloat(obj.Y, 'f', 1, 64)
	case "z":
		return "0.0"
	case "size":
		return strconv.FormatFloat(obj.Size, 'f', 1, 64)
	case "id":
		return obj.ID
	case "uuid":
		return obj.UUID.String()
	case "region":
		return regionName
	case "count":
		return strconv.Itoa(count)
	case "action":
		return obj.Status.String()
	default:
		return ""
	}
}
