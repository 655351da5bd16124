// Package jsonutil extracts JSON payloads from free-form model output.
// Oracles frequently wrap their JSON in markdown fences or surround it with
// prose; execution code must only ever see the object itself.
package jsonutil

import "strings"

const codeFence = "```"

// ExtractObject returns the first complete JSON object found in raw.
// Fenced blocks are preferred over bare objects.
func ExtractObject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if block, ok := fromFence(raw); ok {
		if obj, ok := scanObject(block); ok {
			return obj, true
		}
	}
	return scanObject(raw)
}

func fromFence(raw string) (string, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", false
	}
	block := strings.TrimLeft(rest[:end], "\r\n")
	// Drop a language tag like "json" on the first line.
	if idx := strings.Index(block, "\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "{[") {
			block = block[idx+1:]
		}
	}
	block = strings.TrimSpace(block)
	if block == "" {
		return "", false
	}
	return block, true
}

// scanObject finds the first balanced {...} span, honoring strings and escapes.
func scanObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escape {
			escape = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escape = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1], true
				}
			}
		}
	}
	return "", false
}
