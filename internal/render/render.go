// Package render fills {{placeholder}} templates with per-recipient values.
//
// A placeholder is resolved against an ordered chain of lookups: recipient
// fields first, then batch meta (requester, purpose, date and any other meta
// key), then caller-supplied custom fields. The first non-empty value wins and
// unresolved placeholders render as the empty string. Every value substituted
// into a body is HTML-escaped because the body is sent as text/html.
package render

import (
	"html"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the format used for the default {{date}} value.
const DateLayout = "2006-01-02"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Fields are the template-addressable recipient attributes.
type Fields struct {
	Name     string
	Category string
	Email    string
	Request  string
}

// Meta holds batch-wide placeholder values such as requester and purpose.
type Meta map[string]string

// lookup resolves one placeholder name. ok is false when the source has no
// usable value.
type lookup func(name string) (value string, ok bool)

func (f Fields) lookup(name string) (string, bool) {
	var v string
	switch name {
	case "name", "recipient.name":
		v = f.Name
	case "category", "recipient.category":
		v = f.Category
	case "email", "address", "recipient.email", "recipient.address":
		v = f.Email
	case "request", "requestText", "recipient.request", "recipient.requestText":
		v = f.Request
	default:
		return "", false
	}
	return v, v != ""
}

func isRecipientField(name string) bool {
	_, ok := Fields{Name: "x", Category: "x", Email: "x", Request: "x"}.lookup(name)
	return ok
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock overrides the time source used for the default date.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// WithLocation sets the calendar used for the default date.
func WithLocation(loc *time.Location) Option {
	return func(r *Renderer) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// Renderer is stateless apart from its clock; it is safe for concurrent use.
type Renderer struct {
	now func() time.Time
	loc *time.Location
}

func New(opts ...Option) *Renderer {
	r := &Renderer{now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Today returns the default {{date}} value.
func (r *Renderer) Today() string {
	return r.now().In(r.loc).Format(DateLayout)
}

func (r *Renderer) metaLookup(meta Meta) lookup {
	return func(name string) (string, bool) {
		if v := meta[name]; v != "" {
			return v, true
		}
		if name == "date" {
			return r.Today(), true
		}
		return "", false
	}
}

func customLookup(custom map[string]string) lookup {
	return func(name string) (string, bool) {
		v := custom[name]
		return v, v != ""
	}
}

func (r *Renderer) chain(rcpt Fields, meta Meta, custom map[string]string) []lookup {
	return []lookup{rcpt.lookup, r.metaLookup(meta), customLookup(custom)}
}

func resolve(chain []lookup, name string) string {
	for _, l := range chain {
		if v, ok := l(name); ok {
			return v
		}
	}
	return ""
}

var lineBreaks = strings.NewReplacer("\r\n", "<br>", "\n", "<br>", "\r", "<br>")

// Render substitutes every placeholder in tmpl for an HTML body. Newlines in
// substituted values become <br>.
func (r *Renderer) Render(tmpl string, rcpt Fields, meta Meta, custom map[string]string) string {
	chain := r.chain(rcpt, meta, custom)
	return substitute(tmpl, func(name string) string {
		return lineBreaks.Replace(html.EscapeString(resolve(chain, name)))
	})
}

// RenderSubject is Render for a header line. The subject is plain text, so
// values are not HTML-escaped; any run of whitespace in a value, line breaks
// included, collapses to a single space.
func (r *Renderer) RenderSubject(tmpl string, rcpt Fields, meta Meta, custom map[string]string) string {
	chain := r.chain(rcpt, meta, custom)
	return substitute(tmpl, func(name string) string {
		return strings.Join(strings.Fields(resolve(chain, name)), " ")
	})
}

func substitute(tmpl string, value func(name string) string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		return value(sub[1])
	})
}

// Placeholders returns the distinct placeholder names found in the given
// templates, in order of first appearance.
func Placeholders(templates ...string) []string {
	seen := make(map[string]struct{})
	names := []string{}
	for _, tmpl := range templates {
		for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
			if _, ok := seen[m[1]]; ok {
				continue
			}
			seen[m[1]] = struct{}{}
			names = append(names, m[1])
		}
	}
	return names
}

// RequiredCustomFields lists the placeholders in subject and body that
// neither a recipient field, the default date nor a non-empty meta value can
// serve. A batch must supply each of them as a custom field.
func RequiredCustomFields(subject, body string, meta Meta) []string {
	required := []string{}
	for _, name := range Placeholders(subject, body) {
		if isRecipientField(name) || name == "date" || meta[name] != "" {
			continue
		}
		required = append(required, name)
	}
	return required
}

// MissingCustomFields returns the entries of RequiredCustomFields that custom
// does not provide with a non-empty value.
func MissingCustomFields(subject, body string, meta Meta, custom map[string]string) []string {
	missing := []string{}
	for _, name := range RequiredCustomFields(subject, body, meta) {
		if custom[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
