package conversation

import "strings"

// topicBuckets maps a topic name to the words that trigger it. Matching
// is substring containment over lower-cased content, same discipline as
// crisis classification; a single message can populate several buckets.
var topicBuckets = map[string][]string{
	"anxiety":       {"anxious", "anxiety", "worry", "worried", "panic", "nervous"},
	"depression":    {"depressed", "depression", "sad", "hopeless", "down", "empty"},
	"relationships": {"relationship", "partner", "marriage", "divorce", "breakup", "family"},
	"substance":     {"drinking", "alcohol", "drugs", "sober", "relapse", "using"},
	"work":          {"work", "job", "boss", "career", "workplace", "burnout"},
	"sleep":         {"sleep", "insomnia", "tired", "exhausted", "nightmare"},
	"trauma":        {"trauma", "abuse", "assault", "flashback", "ptsd"},
}

// topicOrder keeps digest output deterministic across map iteration.
var topicOrder = []string{
	"anxiety", "depression", "relationships", "substance", "work", "sleep", "trauma",
}

// topicsForMessages derives the set of topics present in a message window.
func topicsForMessages(messages []Message) []string {
	seen := make(map[string]bool)
	for _, msg := range messages {
		content := strings.ToLower(msg.Content)
		for topic, words := range topicBuckets {
			if seen[topic] {
				continue
			}
			for _, w := range words {
				if strings.Contains(content, w) {
					seen[topic] = true
					break
				}
			}
		}
	}

	topics := make([]string, 0, len(seen))
	for _, topic := range topicOrder {
		if seen[topic] {
			topics = append(topics, topic)
		}
	}
	return topics
}

// lastN returns the trailing n elements of messages without copying the
// backing array contents.
func lastN(messages []Message, n int) []Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
