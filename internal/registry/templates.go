package registry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yosida95/uritemplate/v3"
)

// templateMatcher compiles an RFC 6570 template into a regexp for matching
// concrete raw URIs against it, and tracks the template's total
// literal-character count, so that among multiple matches the template with
// the most literal characters wins.
//
// uritemplate.New validates the template and exposes its variable names; the
// match regexp itself is built the way golang-tools' MCP package does it for
// the same simplified subset of RFC 6570 (plain `{var}` segments matching
// anything but a slash, `{+var}` matching slashes too).
type templateMatcher struct {
	raw          string
	varnames     []string
	re           *regexp.Regexp
	literalChars int
}

func newTemplateMatcher(raw string) (*templateMatcher, error) {
	tpl, err := uritemplate.New(raw)
	if err != nil {
		return nil, fmt.Errorf("parse resource template %q: %w", raw, err)
	}

	re, literalChars, err := compileTemplateRegexp(raw)
	if err != nil {
		return nil, fmt.Errorf("compile resource template %q: %w", raw, err)
	}

	return &templateMatcher{
		raw:          raw,
		varnames:     tpl.Varnames(),
		re:           re,
		literalChars: literalChars,
	}, nil
}

func (m *templateMatcher) Match(uri string) bool {
	return m.re.MatchString(uri)
}

// compileTemplateRegexp turns a template into an anchored matching regexp and
// reports the number of literal (non-variable) characters it contains, used
// to break ties when more than one template matches the same uri.
func compileTemplateRegexp(raw string) (*regexp.Regexp, int, error) {
	var b strings.Builder
	b.WriteByte('^')
	literalChars := 0
	pat := raw
	seen := map[string]bool{}

	for len(pat) > 0 {
		literal, rest, hasExpr := strings.Cut(pat, "{")
		b.WriteString(regexp.QuoteMeta(literal))
		literalChars += len(literal)
		if !hasExpr {
			break
		}

		expr, rest2, ok := strings.Cut(rest, "}")
		if !ok {
			return nil, 0, fmt.Errorf("missing '}' in template")
		}
		pat = rest2

		if strings.ContainsAny(expr, ",:") {
			return nil, 0, fmt.Errorf("unsupported expression %q", expr)
		}

		var segRe, name string
		switch {
		case strings.HasPrefix(expr, "+"):
			segRe, name = `.+`, expr[1:]
		case strings.HasSuffix(expr, "*"):
			segRe, name = `.+`, strings.TrimSuffix(expr, "*")
		default:
			segRe, name = `[^/]+`, expr
		}
		if seen[name] {
			return nil, 0, fmt.Errorf("duplicate variable %q", name)
		}
		seen[name] = true
		b.WriteString(segRe)
	}
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, 0, err
	}
	return re, literalChars, nil
}

// percentEncodeTemplateLiterals percent-encodes everything outside of
// `{...}` expressions, so a client-visible URITemplate stays expandable while
// the surrounding literal path is namespaced consistently with concrete
// resource URIs (namespaceResourceURI).
func percentEncodeTemplateLiterals(raw string) string {
	var b strings.Builder
	pat := raw
	for len(pat) > 0 {
		literal, rest, hasExpr := strings.Cut(pat, "{")
		b.WriteString(percentEncode(literal))
		if !hasExpr {
			break
		}
		expr, rest2, ok := strings.Cut(rest, "}")
		if !ok {
			b.WriteString("{" + rest)
			break
		}
		b.WriteByte('{')
		b.WriteString(expr)
		b.WriteByte('}')
		pat = rest2
	}
	return b.String()
}
