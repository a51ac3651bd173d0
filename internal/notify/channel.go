package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
)

// ChannelType tags one of the closed set of delivery channel kinds.
type ChannelType string

const (
	TypeChat    ChannelType = "chat"
	TypeEmail   ChannelType = "email"
	TypeWebhook ChannelType = "webhook"
)

// Environment variables that configure delivery channels. Presence of the
// URL (or recipient) variable enables the channel. Channels are read once
// at process start.
const (
	EnvChatWebhookURL    = "ALERT_CHAT_WEBHOOK_URL"
	EnvChatChannel       = "ALERT_CHAT_CHANNEL"
	EnvChatWebhookURLAlt = "ALERT_CHAT_WEBHOOK_URL_ALT"
	EnvEmailTo           = "ALERT_EMAIL_TO"
	EnvEmailFrom         = "ALERT_EMAIL_FROM"
	EnvWebhookURL        = "ALERT_WEBHOOK_URL"
	EnvWebhookMethod     = "ALERT_WEBHOOK_METHOD"
	EnvWebhookHeaders    = "ALERT_WEBHOOK_HEADERS"
)

// Channel is one configured delivery target. Read-only after process start.
type Channel struct {
	Name string
	Type ChannelType

	// URL is the delivery endpoint for chat and webhook channels.
	URL string

	// ChatChannel is the chat room/channel override, when the chat service
	// supports one.
	ChatChannel string

	// EmailTo and EmailFrom configure the email placeholder channel.
	EmailTo   string
	EmailFrom string

	// Method and Headers apply to the generic webhook channel.
	// Method defaults to POST; Content-Type defaults to application/json.
	Method  string
	Headers map[string]string
}

// ChannelsFromEnv builds the enabled channel set from the environment.
// A channel is enabled by the presence of its primary variable.
func ChannelsFromEnv() []Channel {
	var out []Channel

	if url := os.Getenv(EnvChatWebhookURL); url != "" {
		out = append(out, Channel{
			Name:        "chat",
			Type:        TypeChat,
			URL:         url,
			ChatChannel: os.Getenv(EnvChatChannel),
		})
	}
	if url := os.Getenv(EnvChatWebhookURLAlt); url != "" {
		out = append(out, Channel{
			Name: "chat-alt",
			Type: TypeChat,
			URL:  url,
		})
	}
	if to := os.Getenv(EnvEmailTo); to != "" {
		from := os.Getenv(EnvEmailFrom)
		if from == "" {
			from = "alerts@localhost"
		}
		out = append(out, Channel{
			Name:      "email",
			Type:      TypeEmail,
			EmailTo:   to,
			EmailFrom: from,
		})
	}
	if url := os.Getenv(EnvWebhookURL); url != "" {
		ch := Channel{
			Name:    "webhook",
			Type:    TypeWebhook,
			URL:     url,
			Method:  http.MethodPost,
			Headers: map[string]string{},
		}
		if m := os.Getenv(EnvWebhookMethod); m != "" {
			ch.Method = m
		}
		if raw := os.Getenv(EnvWebhookHeaders); raw != "" {
			if err := json.Unmarshal([]byte(raw), &ch.Headers); err != nil {
				slog.Warn("notify: ignoring unparseable webhook headers",
					"env", EnvWebhookHeaders, "err", err)
				ch.Headers = map[string]string{}
			}
		}
		out = append(out, ch)
	}

	return out
}
