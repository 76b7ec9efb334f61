package slack

import (
	"fmt"
	"time"
)

// EventType identifies the type of directory event.
type EventType string

// Event types for Slack notifications.
const (
	EventCurrentUserChanged EventType = "current_user_changed"
	EventUserAdded          EventType = "user_added"
	EventUserUpdated        EventType = "user_updated"
	EventUserRemoved        EventType = "user_removed"
	EventDirectoryCleared   EventType = "directory_cleared"
)

// Field keys used in notification payloads.
const (
	FieldUserID   = "user_id"
	FieldUserName = "user_name"
	FieldPrevious = "previous"
	FieldCount    = "count"
	FieldSource   = "source"
)

// eventConfig holds display configuration for each event type.
type eventConfig struct {
	emoji string
	title string
}

var eventConfigs = map[EventType]eventConfig{
	EventCurrentUserChanged: {emoji: "👤", title: "Current User Changed"},
	EventUserAdded:          {emoji: "➕", title: "User Added"},
	EventUserUpdated:        {emoji: "✏️", title: "User Renamed"},
	EventUserRemoved:        {emoji: "➖", title: "User Removed"},
	EventDirectoryCleared:   {emoji: "🧹", title: "Directory Cleared"},
}

// formatMessage creates a Slack message for the given event.
func formatMessage(event EventType, fields map[string]string) *slackMessage {
	cfg, ok := eventConfigs[event]
	if !ok {
		cfg = eventConfig{emoji: "📢", title: string(event)}
	}

	header := fmt.Sprintf("%s *%s*", cfg.emoji, cfg.title)

	var fieldBlocks []slackText
	switch event {
	case EventCurrentUserChanged, EventUserAdded, EventUserUpdated, EventUserRemoved:
		fieldBlocks = formatUserFields(fields)
	case EventDirectoryCleared:
		fieldBlocks = formatClearedFields(fields)
	default:
		fieldBlocks = formatGenericFields(fields)
	}

	blocks := []slackBlock{
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: header},
		},
	}

	if len(fieldBlocks) > 0 {
		blocks = append(blocks, slackBlock{
			Type:   "section",
			Fields: fieldBlocks,
		})
	}

	blocks = append(blocks, slackBlock{
		Type: "context",
		Fields: []slackText{
			{Type: "mrkdwn", Text: fmt.Sprintf("_userdir • %s_", time.Now().Format("Jan 2, 15:04 MST"))},
		},
	})

	return &slackMessage{
		Text:   fmt.Sprintf("%s %s", cfg.emoji, cfg.title), // Fallback text
		Blocks: blocks,
	}
}

func formatUserFields(fields map[string]string) []slackText {
	var result []slackText
	if v := fields[FieldUserID]; v != "" {
		result = append(result, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*ID:*\n`%s`", v)})
	}
	if v := fields[FieldUserName]; v != "" {
		result = append(result, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Name:*\n%s", truncate(v, 80))})
	}
	if v := fields[FieldPrevious]; v != "" {
		result = append(result, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Previous:*\n%s", truncate(v, 80))})
	}
	if v := fields[FieldSource]; v != "" {
		result = append(result, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Source:*\n%s", v)})
	}
	return result
}

func formatClearedFields(fields map[string]string) []slackText {
	var result []slackText
	if v := fields[FieldCount]; v != "" {
		result = append(result, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Removed:*\n%s records", v)})
	}
	return result
}

func formatGenericFields(fields map[string]string) []slackText {
	var result []slackText
	for k, v := range fields {
		if v != "" {
			result = append(result, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", k, truncate(v, 100))})
		}
	}
	return result
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
