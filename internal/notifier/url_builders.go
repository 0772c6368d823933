package notifier

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Protocol prefix constants for URL normalization
const (
	httpsPrefix = "https://"
	httpPrefix  = "http://"
)

// URLBuilder defines the interface for provider-specific URL building
type URLBuilder interface {
	BuildURL(config json.RawMessage) (string, error)
}

// urlBuilders maps provider types to their URL builders
var urlBuilders = map[string]URLBuilder{
	ProviderDiscord:  &discordBuilder{},
	ProviderSlack:    &slackBuilder{},
	ProviderTelegram: &telegramBuilder{},
	ProviderGotify:   &gotifyBuilder{},
	ProviderNtfy:     &ntfyBuilder{},
	ProviderPushover: &pushoverBuilder{},
	ProviderGeneric:  &genericBuilder{},
	ProviderCustom:   &customBuilder{},
}

// discordBuilder builds Discord shoutrrr URLs
type discordBuilder struct{}

func (b *discordBuilder) BuildURL(config json.RawMessage) (string, error) {
	var c DiscordConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return "", err
	}
	return convertDiscordWebhook(c.WebhookURL)
}

// slackBuilder builds Slack shoutrrr URLs
type slackBuilder struct{}

func (b *slackBuilder) BuildURL(config json.RawMessage) (string, error) {
	var c SlackConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return "", err
	}
	return convertSlackWebhook(c.WebhookURL)
}

// telegramBuilder builds Telegram shoutrrr URLs
type telegramBuilder struct{}

func (b *telegramBuilder) BuildURL(config json.RawMessage) (string, error) {
	var c TelegramConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return "", err
	}
	return fmt.Sprintf("telegram://%s@telegram?chats=%s", c.BotToken, c.ChatID), nil
}

// gotifyBuilder builds Gotify shoutrrr URLs
type gotifyBuilder struct{}

func (b *gotifyBuilder) BuildURL(config json.RawMessage) (string, error) {
	var c GotifyConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return "", err
	}
	serverURL := strings.TrimPrefix(c.ServerURL, httpsPrefix)
	serverURL = strings.TrimPrefix(serverURL, httpPrefix)
	u := fmt.Sprintf("gotify://%s/%s", serverURL, c.AppToken)
	if c.Priority > 0 {
		u += fmt.Sprintf("?priority=%d", c.Priority)
	}
	return u, nil
}

// ntfyBuilder builds Ntfy shoutrrr URLs
type ntfyBuilder struct{}

func (b *ntfyBuilder) BuildURL(config json.RawMessage) (string, error) {
	var c NtfyConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return "", err
	}
	serverURL := c.ServerURL
	if serverURL == "" {
		serverURL = httpsPrefix + "ntfy.sh"
	}
	serverURL = strings.TrimPrefix(serverURL, httpsPrefix)
	serverURL = strings.TrimPrefix(serverURL, httpPrefix)
	u := fmt.Sprintf("ntfy://%s/%s", serverURL, c.Topic)
	if c.Priority > 0 {
		u += fmt.Sprintf("?priority=%d", c.Priority)
	}
	return u, nil
}

// pushoverBuilder builds Pushover shoutrrr URLs
type pushoverBuilder struct{}

func (b *pushoverBuilder) BuildURL(config json.RawMessage) (string, error) {
	var c PushoverConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return "", err
	}
	u := fmt.Sprintf("pushover://shoutrrr:%s@%s/", c.AppToken, c.UserKey)
	params := url.Values{}
	if c.Priority != 0 {
		params.Set("priority", fmt.Sprintf("%d", c.Priority))
	}
	if c.Sound != "" {
		params.Set("sound", c.Sound)
	}
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u, nil
}

// genericBuilder builds Generic webhook shoutrrr URLs
type genericBuilder struct{}

// addGenericParams adds standard shoutrrr parameters from config.
func addGenericParams(params url.Values, c GenericConfig) {
	if c.Template != "" {
		params.Set("template", c.Template)
	}
	if c.MessageKey != "" && c.MessageKey != "message" {
		params.Set("messageKey", c.MessageKey)
	}
	if c.TitleKey != "" && c.TitleKey != "title" {
		params.Set("titleKey", c.TitleKey)
	}
	if c.ContentType != "" && c.ContentType != "application/json" {
		params.Set("contenttype", c.ContentType)
	}
	if c.Method != "" && c.Method != "POST" {
		params.Set("requestmethod", c.Method)
	}
}

// parseKeyValueLines parses lines of "key=value" format and adds them to params with prefix.
func parseKeyValueLines(params url.Values, data, prefix string) {
	if data == "" {
		return
	}
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			params.Set(prefix+parts[0], parts[1])
		}
	}
}

func (b *genericBuilder) BuildURL(config json.RawMessage) (string, error) {
	var c GenericConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return "", err
	}
	targetURL := c.WebhookURL
	if !strings.HasPrefix(targetURL, "http") {
		targetURL = httpsPrefix + targetURL
	}

	params := url.Values{}
	addGenericParams(params, c)
	parseKeyValueLines(params, c.CustomHeaders, "@") // Custom headers
	parseKeyValueLines(params, c.ExtraData, "$")     // Extra data

	if len(params) == 0 {
		return "generic+" + targetURL, nil
	}
	// Need to use generic:// format for params
	u, _ := url.Parse(targetURL)
	return "generic://" + u.Host + u.Path + "?" + params.Encode(), nil
}

// customBuilder handles Custom shoutrrr URLs (user provides raw URL)
type customBuilder struct{}

func (b *customBuilder) BuildURL(config json.RawMessage) (string, error) {
	var c CustomConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return "", err
	}
	return c.URL, nil
}
