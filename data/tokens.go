package data

import (
	"regexp"
	"sort"
	"strings"
)

var tokenSeparators = regexp.MustCompile(`[\s._-]+`)

// Tokenize splits name on whitespace, dots, underscores and dashes and returns the
// distinct folded parts in sorted order.
func Tokenize(name string) []string {
	parts := tokenSeparators.Split(Fold(name), -1)

	seen := make(map[string]struct{}, len(parts))
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		tokens = append(tokens, part)
	}

	sort.Strings(tokens)
	return tokens
}

// TokenizeFile tokenizes the base name of a file with its extension removed.
func TokenizeFile(name string) []string {
	name = Base(name)
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}

	return Tokenize(name)
}

// NormalizeTokens folds and deduplicates user supplied filter tokens.
func NormalizeTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		token = Fold(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}

	return out
}

// NormalizeExtensions folds extensions and strips leading dots.
func NormalizeExtensions(extensions []string) []string {
	out := make([]string, 0, len(extensions))
	seen := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = Fold(strings.TrimLeft(strings.TrimSpace(ext), "."))
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}

	return out
}
