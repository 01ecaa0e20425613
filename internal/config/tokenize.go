// Package config reads and writes the OpenSSH client configuration format.
//
// Only a subset of ssh_config(5) is modeled: Host blocks with HostName, User,
// Port, IdentityFile and the three forwarding directives. Everything else is
// carried through as opaque key/value options. Match blocks, Include
// expansion, multi-target Host patterns and line continuation are not
// interpreted; Lint reports where a file relies on them.
package config

import "strings"

// Token is one logical key/value line.
type Token struct {
	Line  int
	Key   string
	Value string
}

// Tokenize splits content into key/value tokens. Blank lines, comments and
// lines with fewer than two fields are dropped. Lines have no length limit.
func Tokenize(content string) []Token {
	var out []Token
	for i, raw := range strings.Split(content, "\n") {
		key, value, ok := splitDirective(raw)
		if !ok {
			continue
		}
		out = append(out, Token{Line: i + 1, Key: key, Value: value})
	}
	return out
}

// splitDirective splits a raw line at its first run of whitespace.
func splitDirective(raw string) (key, value string, ok bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	i := strings.IndexAny(line, " \t")
	if i <= 0 {
		return "", "", false
	}
	key = line[:i]
	value = strings.TrimSpace(line[i+1:])
	return key, value, value != ""
}
