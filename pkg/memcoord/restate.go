// Copyright 2025 Eric G. Suchanek
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memcoord

import (
	"regexp"
	"strings"
)

// Restate rewrites a first-person user fact into a third-person
// statement about userID, for graph ingestion only; the literal text
// stays in the semantic store. Everything outside the rewrite table is
// preserved verbatim. The function is idempotent: once no first-person
// forms remain, it is the identity.
func Restate(text, userID string) string {
	result := text
	for _, rule := range restateRules {
		result = rule.pattern.ReplaceAllStringFunc(result, func(match string) string {
			return rule.rewrite(match, userID)
		})
	}
	return result
}

type restateRule struct {
	pattern *regexp.Regexp
	rewrite func(match, userID string) string
}

// The fixed forms come first so the generic "I <verb>" rule only sees
// genuine verbs.
var restateRules = []restateRule{
	{regexp.MustCompile(`(?i)\bI\s+am\b|\bI'm\b`), func(_, u string) string { return u + " is" }},
	{regexp.MustCompile(`(?i)\bI\s+was\b`), func(_, u string) string { return u + " was" }},
	{regexp.MustCompile(`(?i)\bI\s+have\b|\bI've\b`), func(_, u string) string { return u + " has" }},
	{regexp.MustCompile(`(?i)\bI\s+had\b`), func(_, u string) string { return u + " had" }},
	{regexp.MustCompile(`(?i)\bI\s+will\b|\bI'll\b`), func(_, u string) string { return u + " will" }},
	{regexp.MustCompile(`(?i)\bI\s+would\b|\bI'd\b`), func(_, u string) string { return u + " would" }},
	{regexp.MustCompile(`(?i)\bI\s+can\b`), func(_, u string) string { return u + " can" }},
	{regexp.MustCompile(`(?i)\bI\s+don't\b|\bI\s+do\s+not\b`), func(_, u string) string { return u + " doesn't" }},
	{
		// Generic "I <verb>" with naive third-person conjugation.
		regexp.MustCompile(`\bI\s+([a-zA-Z]+)`),
		func(match, u string) string {
			verb := strings.Fields(match)[1]
			return u + " " + conjugateThirdPerson(verb)
		},
	},
	{regexp.MustCompile(`(?i)\bmy\b`), func(_, u string) string { return u + "'s" }},
	{regexp.MustCompile(`(?i)\bmine\b`), func(_, u string) string { return u + "'s" }},
	{regexp.MustCompile(`(?i)\bmyself\b`), func(_, u string) string { return u }},
	{regexp.MustCompile(`(?i)\bme\b`), func(_, u string) string { return u }},
	{regexp.MustCompile(`\bI\b`), func(_, u string) string { return u }},
}

func conjugateThirdPerson(verb string) string {
	lower := strings.ToLower(verb)
	switch lower {
	case "am":
		return "is"
	case "was", "had", "will", "would", "can", "could", "should", "must", "might":
		return lower
	case "have":
		return "has"
	case "do":
		return "does"
	case "go":
		return "goes"
	}

	switch {
	case strings.HasSuffix(lower, "s"),
		strings.HasSuffix(lower, "x"),
		strings.HasSuffix(lower, "z"),
		strings.HasSuffix(lower, "ch"),
		strings.HasSuffix(lower, "sh"):
		return lower + "es"
	case strings.HasSuffix(lower, "y") && len(lower) > 1 && !isVowel(lower[len(lower)-2]):
		return lower[:len(lower)-1] + "ies"
	default:
		return lower + "s"
	}
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
