package memcoord

import (
	"sort"
	"strings"
)

// topicKeywords drive auto-classification when the caller supplies no
// topics. Matching is substring-based on the lowercased text.
var topicKeywords = map[string][]string{
	"work":        {"work", "job", "career", "office", "boss", "colleague", "project", "meeting"},
	"family":      {"family", "mother", "father", "sister", "brother", "wife", "husband", "kid", "son", "daughter", "parent"},
	"food":        {"food", "eat", "cook", "restaurant", "meal", "dish", "recipe", "pizza", "sushi", "coffee", "tea"},
	"travel":      {"travel", "trip", "vacation", "flight", "visit", "country", "city", "abroad"},
	"health":      {"health", "doctor", "allerg", "medication", "exercise", "gym", "sleep", "diet"},
	"hobbies":     {"hobby", "play", "game", "music", "guitar", "read", "book", "hik", "paint", "sport"},
	"preferences": {"love", "like", "favorite", "prefer", "enjoy", "hate", "dislike"},
	"location":    {"live", "address", "home", "apartment", "house", "neighborhood"},
	"pets":        {"pet", "dog", "cat", "bird", "fish"},
}

// ClassifyTopics derives a small topic set from the text by keyword
// heuristics. It never modifies the text. Unmatched text is filed under
// "personal".
func ClassifyTopics(text string) []string {
	lower := strings.ToLower(text)

	var topics []string
	for topic, keywords := range topicKeywords {
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				topics = append(topics, topic)
				break
			}
		}
	}

	if len(topics) == 0 {
		return []string{"personal"}
	}
	sort.Strings(topics)
	return topics
}
