package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/model"
)

// chatPayload is the chat-embed style body sent to chat webhooks.
type chatPayload struct {
	Channel     string           `json:"channel,omitempty"`
	Username    string           `json:"username"`
	Attachments []chatAttachment `json:"attachments"`
}

type chatAttachment struct {
	Color  string      `json:"color"`
	Title  string      `json:"title"`
	Text   string      `json:"text"`
	Fields []chatField `json:"fields"`
	Ts     int64       `json:"ts"`
}

type chatField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// sendChat renders and posts the chat-embed payload.
func (n *Notifier) sendChat(ctx context.Context, ch Channel, a *model.Alert) error {
	p := chatPayload{
		Channel:  ch.ChatChannel,
		Username: "workflow-alerter",
		Attachments: []chatAttachment{{
			Color: severityColor(a.Severity),
			Title: fmt.Sprintf("%s %s", severityLabel(a.Severity), a.Name),
			Text:  a.Message,
			Fields: []chatField{
				{Title: "Severity", Value: string(a.Severity), Short: true},
				{Title: "Rule", Value: a.RuleID, Short: true},
			},
			Ts: a.CreatedAt.Unix(),
		}},
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal chat payload: %w", err)
	}
	return n.post(ctx, http.MethodPost, ch.URL, body, nil)
}

// sendWebhook posts the generic JSON envelope {"alert": {...}}.
func (n *Notifier) sendWebhook(ctx context.Context, ch Channel, a *model.Alert) error {
	body, err := json.Marshal(map[string]any{"alert": a})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	return n.post(ctx, ch.Method, ch.URL, body, ch.Headers)
}

// emailSubject renders the placeholder email subject line.
func emailSubject(a *model.Alert) string {
	return fmt.Sprintf("%s %s", severityLabel(a.Severity), a.Name)
}

func severityLabel(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "[CRITICAL]"
	case model.SeverityHigh:
		return "[HIGH]"
	case model.SeverityMedium:
		return "[MEDIUM]"
	default:
		return "[LOW]"
	}
}

func severityColor(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "#E01E5A"
	case model.SeverityHigh:
		return "#FF6B35"
	case model.SeverityMedium:
		return "#ECB22E"
	default:
		return "#2EB67D"
	}
}
