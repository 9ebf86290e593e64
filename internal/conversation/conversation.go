// Package conversation turns raw Slack messages into the context handed to
// the completion model.
package conversation

import (
	"fmt"
	"strings"
)

// Role identifies who produced a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// humanSpeaker labels non-bot lines in the channel context
const humanSpeaker = "User"

// Turn is one entry of a thread conversation
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message is the part of a Slack message the converters care about
type Message struct {
	User     string
	BotID    string
	Text     string
	TS       string
	ThreadTS string
}

// IsReply reports whether the message is a thread reply rather than a
// top-level channel message.
func (m Message) IsReply() bool {
	return m.ThreadTS != "" && m.TS != m.ThreadTS
}

func (m Message) fromBot(botUserID string) bool {
	return m.BotID != "" || m.User == botUserID
}

// MentionToken returns the markup Slack uses to mention the given user
func MentionToken(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

// ExtractMessage removes every mention of the bot from text and trims the
// result. An empty return value means the message carried no content.
func ExtractMessage(text, botUserID string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, MentionToken(botUserID), ""))
}

// ToHistory converts the messages of a thread into chronological turns.
// The triggering message (currentTS) is left out since it is sent
// separately as the new user message.
func ToHistory(messages []Message, botUserID, currentTS string) []Turn {
	history := make([]Turn, 0, len(messages))

	for _, msg := range messages {
		if msg.TS == currentTS {
			continue
		}

		text := ExtractMessage(msg.Text, botUserID)
		if text == "" {
			continue
		}

		role := RoleUser
		if msg.fromBot(botUserID) {
			role = RoleAssistant
		}
		history = append(history, Turn{Role: role, Content: text})
	}

	return history
}

// ToChannelContext flattens recent top-level channel chatter into
// "speaker: text" lines. Messages of the active thread and replies in
// other threads are skipped.
func ToChannelContext(messages []Message, botUserID, botName, currentThreadTS string) string {
	var lines []string

	for _, msg := range messages {
		if currentThreadTS != "" && msg.ThreadTS == currentThreadTS {
			continue
		}
		if msg.IsReply() {
			continue
		}

		text := ExtractMessage(msg.Text, botUserID)
		if text == "" {
			continue
		}

		speaker := humanSpeaker
		if msg.fromBot(botUserID) {
			speaker = botName
		}
		lines = append(lines, speaker+": "+text)
	}

	return strings.Join(lines, "\n")
}
