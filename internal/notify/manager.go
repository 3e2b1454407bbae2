// Package notify sends task lifecycle events to Slack. Adapted from a
// multi-provider Manager: the Slack half is kept near-verbatim (it already
// uses the slack-go SDK rather than a raw webhook), Discord support is
// dropped — see DESIGN.md for why.
package notify

import (
	"context"
	"os"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"github.com/spf13/viper"
)

// Event types a task run can notify on.
const (
	EventStart           = "on_start"
	EventSuccess         = "on_success"
	EventFailure         = "on_failure"
	EventUserInteraction = "on_user_interaction"
	EventProjectComplete = "on_project_complete"
)

// slackAPI is the subset of *slack.Client the Manager calls.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
}

// Manager sends task lifecycle notifications to a configured Slack
// workspace.
type Manager struct {
	client       slackAPI
	socketClient *socketmode.Client
	channelID    string

	logger func(string, ...interface{})
}

// NewManager creates a new Notification Manager, wiring Slack from
// viper config (notifications.slack.*) and the SLACK_BOT_USER_TOKEN /
// SLACK_APP_TOKEN environment variables.
func NewManager(logger func(string, ...interface{})) *Manager {
	m := &Manager{logger: logger}
	m.initSlack()
	return m
}

func (m *Manager) initSlack() {
	if !viper.GetBool("notifications.slack.enabled") {
		return
	}

	botToken := os.Getenv("SLACK_BOT_USER_TOKEN")
	appToken := os.Getenv("SLACK_APP_TOKEN")

	if botToken == "" {
		if m.logger != nil {
			m.logger("Warning: SLACK_BOT_USER_TOKEN not set, slack notifications disabled")
		}
		return
	}

	api := slack.New(
		botToken,
		slack.OptionAppLevelToken(appToken),
	)

	m.client = api
	m.channelID = viper.GetString("notifications.slack.channel")

	if appToken != "" && strings.HasPrefix(appToken, "xapp-") {
		m.socketClient = socketmode.New(api)
	}
}

// Start initiates background clients (Socket Mode for interactive
// features) if the app token configures it.
func (m *Manager) Start(ctx context.Context) {
	if m.socketClient != nil {
		go func() {
			if m.logger != nil {
				m.logger("Starting Slack Socket Mode...")
			}
			err := m.socketClient.RunContext(ctx)
			if err != nil && err != context.Canceled {
				if m.logger != nil {
					m.logger("Slack Socket Mode error: %v", err)
				}
			}
		}()
	}
}

// Notify sends a notification if eventType is enabled in configuration,
// threading onto threadTS if one was passed, and returns the message
// timestamp to thread subsequent notifications onto.
func (m *Manager) Notify(ctx context.Context, eventType, message, threadTS string) (string, error) {
	if !m.isEnabled(eventType) {
		return "", nil
	}

	if m.client == nil {
		return "", nil
	}

	channelID := m.channelID
	if channelID == "" {
		channelID = "#general"
	}

	opts := []slack.MsgOption{slack.MsgOptionText(message, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	_, newTS, err := m.client.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		if m.logger != nil {
			m.logger("Failed to send Slack notification: %v", err)
		}
		return threadTS, err
	}
	return newTS, nil
}

func (m *Manager) isEnabled(eventType string) bool {
	if !viper.GetBool("notifications.slack.enabled") {
		return false
	}
	return viper.GetBool("notifications.slack.events." + eventType)
}

// AddReaction adds an emoji reaction to a threaded message.
func (m *Manager) AddReaction(ctx context.Context, timestamp, reaction string) error {
	if m.client == nil || timestamp == "" {
		return nil
	}

	channelID := m.channelID
	if channelID == "" {
		channelID = "#general"
	}

	err := m.client.AddReactionContext(ctx, reaction, slack.ItemRef{
		Channel:   channelID,
		Timestamp: timestamp,
	})
	if err != nil && m.logger != nil {
		m.logger("Failed to add Slack reaction %s: %v", reaction, err)
	}
	return err
}
