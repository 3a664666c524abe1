package seatbelt

import "strings"

// directive is a single seatbelt S-expression line.
type directive struct {
	action    string // "allow" or "deny"
	operation string // "file-read*", "file-write*", "file-write-unlink", "network*", "network-outbound", "network-inbound", "network-bind"
	matcher   string // "subpath" or "regex" or "" for bare operations like (allow network*)
	value     string
	logTag    string
}

func (d directive) String() string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(d.action)
	b.WriteByte(' ')
	b.WriteString(d.operation)
	switch d.matcher {
	case "subpath":
		b.WriteString(" (subpath \"")
		b.WriteString(escapeLiteral(d.value))
		b.WriteString("\")")
	case "regex":
		b.WriteString(" (regex #\"")
		b.WriteString(d.value)
		b.WriteString("\")")
	}
	if d.logTag != "" {
		b.WriteString(" (with message \"")
		b.WriteString(d.logTag)
		b.WriteString("\")")
	}
	b.WriteByte(')')
	return b.String()
}

func escapeLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func subpathDeny(op, path, logTag string) directive {
	return directive{action: "deny", operation: op, matcher: "subpath", value: path, logTag: logTag}
}

func subpathAllow(op, path string) directive {
	return directive{action: "allow", operation: op, matcher: "subpath", value: path}
}

func regexDeny(op, pattern, logTag string) directive {
	return directive{action: "deny", operation: op, matcher: "regex", value: pattern, logTag: logTag}
}

func bare(action, op string) directive {
	return directive{action: action, operation: op}
}
