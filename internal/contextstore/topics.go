package contextstore

import "strings"

// topicKeywords maps a topic label to the lowercase keywords that signal it.
// Matching is token-based so "pip" does not fire inside "pipeline".
var topicKeywords = map[string][]string{
	"python":     {"python", "pip", "django", "flask", "pandas", "numpy"},
	"javascript": {"javascript", "js", "node", "react", "vue", "angular"},
	"golang":     {"golang", "goroutine", "goroutines", "channels"},
	"linux":      {"linux", "ubuntu", "debian", "arch", "kernel", "bash"},
	"security":   {"security", "encryption", "vpn", "tor", "privacy", "hack"},
	"crypto":     {"bitcoin", "monero", "ethereum", "blockchain", "defi"},
	"ai":         {"ai", "llm", "gpt", "neural", "gemini", "deepseek"},
	"networking": {"network", "networking", "tcp", "udp", "http", "dns", "firewall", "kubernetes"},
	"database":   {"database", "sql", "sqlite", "mongodb", "redis", "postgresql"},
}

// ExtractTopics returns the set of topic labels whose keywords appear as
// tokens in text. Exported so the intent router can flag messages about
// topics the conversation has not seen yet.
func ExtractTopics(text string) map[string]struct{} {
	tokens := tokenize(text)
	matched := make(map[string]struct{})
	for topic, keywords := range topicKeywords {
		for _, kw := range keywords {
			if _, ok := tokens[kw]; ok {
				matched[topic] = struct{}{}
				break
			}
		}
	}
	return matched
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,!?;:()[]{}\"'`")
		if f != "" {
			tokens[f] = struct{}{}
		}
	}
	return tokens
}
