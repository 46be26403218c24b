package dberr

import (
	"regexp"
	"strings"
)

const (
	maxMessageLength = 300
	maxStackFrames   = 5
	redacted         = "[REDACTED]"
)

var (
	connStringRe = regexp.MustCompile(`(?i)\b(postgres(?:ql)?://)[^\s@]+@`)
	credentialRe = regexp.MustCompile(`(?i)\b(password|passwd|token|secret|api_key|apikey)\s*=\s*[^\s;]+`)
	identifierRe = regexp.MustCompile(`(?i)\b(relation|column|table|constraint|index) "[^"]*"`)
	homeDirRe    = regexp.MustCompile(`(/home/[^/\s]+|/Users/[^/\s]+|/root)`)
	pathRe       = regexp.MustCompile(`(?:/[\w.\-@+]+)+/`)
)

// attack signatures scanned for in raw driver error text. A match raises a
// monitoring alert but never changes the functional classification.
var attackSignatures = []string{
	"union select",
	"information_schema",
	"pg_sleep",
	"pg_catalog",
	"or 1=1",
	"; drop ",
	"xp_cmdshell",
	"load_file",
}

// SanitizeMessage strips schema and credential detail out of a driver error
// message so it can be logged without leaking connection strings, secrets, or
// table layout. The result is capped at a fixed length.
func SanitizeMessage(msg string) string {
	out := connStringRe.ReplaceAllString(msg, "${1}"+redacted+"@")
	out = credentialRe.ReplaceAllString(out, "${1}="+redacted)
	out = identifierRe.ReplaceAllString(out, "${1} \""+redacted+"\"")
	if len(out) > maxMessageLength {
		out = out[:maxMessageLength] + "..."
	}
	return out
}

// SanitizeStack trims a stack trace for logging: filesystem paths and home
// directories are stripped and only the first frames are kept.
func SanitizeStack(stack string) string {
	lines := strings.Split(strings.TrimRight(stack, "\n"), "\n")

	// A runtime stack alternates a function line and a file:line line per
	// frame after the goroutine header.
	maxLines := 1 + maxStackFrames*2
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	for i, line := range lines {
		line = homeDirRe.ReplaceAllString(line, "~")
		lines[i] = pathRe.ReplaceAllString(line, "")
	}
	return strings.Join(lines, "\n")
}

func matchSignature(raw string) string {
	lowered := strings.ToLower(raw)
	for _, sig := range attackSignatures {
		if strings.Contains(lowered, sig) {
			return sig
		}
	}
	return ""
}
