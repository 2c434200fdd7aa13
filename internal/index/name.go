package index

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// LogicalName returns the overload group name of a method or directive target.
//
// The input is NFC normalized, cut at the first underscore and given an
// upper-case first rune, so "notify", "Notify" and "Notify_Mail" all map to
// "Notify".
func LogicalName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '_'); i > 0 {
		name = name[:i]
	}
	return upperFirst(name)
}

// exactName normalizes a target that names a specific overload
// ("notify_Mail" → "Notify_Mail"). The second result is false when the name
// has no overload suffix.
func exactName(name string) (string, bool) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '_'); i <= 0 || i == len(name)-1 {
		return "", false
	}
	return upperFirst(name), true
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// QualifiedName returns the fully-qualified name of a class type:
// its package path, a dot, and its type name. Pointers are dereferenced.
func QualifiedName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// TypeName renders a type for messages and plan descriptions.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "void"
	}
	return t.String()
}

// Key returns the normalized form of a directive target: the exact method
// name when the target names an overload, its logical name otherwise.
func Key(name string) string {
	if exact, ok := exactName(name); ok {
		return exact
	}
	return LogicalName(name)
}
