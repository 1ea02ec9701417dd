package queue

import (
	"fmt"
	"strings"
)

// RoutingKey is a dot-segmented key matched against topic binding patterns.
type RoutingKey string

const (
	eventsPrefix      = "events"
	webhooksPrefix    = "webhooks"
	taskTriggerPrefix = "task.trigger"
	taskResultPrefix  = "task.result"
)

// EventKey builds an `events.<eventKey>` routing key.
func EventKey(event string) RoutingKey {
	return RoutingKey(eventsPrefix + "." + event)
}

// WebhookKey builds a `webhooks.<id>` routing key.
func WebhookKey(id string) RoutingKey {
	return RoutingKey(webhooksPrefix + "." + id)
}

// TaskTriggerKey builds a `task.trigger.<resource>.<id>` routing key.
func TaskTriggerKey(resource, id string) RoutingKey {
	return RoutingKey(fmt.Sprintf("%s.%s.%s", taskTriggerPrefix, resource, id))
}

// TaskResultKey builds a `task.result.<resource>.<id>` routing key.
func TaskResultKey(resource, id string) RoutingKey {
	return RoutingKey(fmt.Sprintf("%s.%s.%s", taskResultPrefix, resource, id))
}

func (k RoutingKey) String() string {
	return string(k)
}

// Matches reports whether the key is routed by a topic exchange binding with the given pattern.
// `*` matches exactly one word and `#` matches zero or more words.
func (k RoutingKey) Matches(pattern string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(string(k), "."))
}

func matchWords(pattern, words []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "#":
			if len(pattern) == 1 {
				return true
			}

			for i := 0; i <= len(words); i++ {
				if matchWords(pattern[1:], words[i:]) {
					return true
				}
			}

			return false

		case "*":
			if len(words) == 0 {
				return false
			}

		default:
			if len(words) == 0 || words[0] != pattern[0] {
				return false
			}
		}

		pattern, words = pattern[1:], words[1:]
	}

	return len(words) == 0
}
