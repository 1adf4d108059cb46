package notify

import (
	"context"

	"go.uber.org/zap"
)

// Channel delivers rendered notification content.
type Channel interface {
	Name() string
	Send(ctx context.Context, subject, message string) error
}

// LogChannel writes notifications to the application log. Used when no
// webhook is configured.
type LogChannel struct {
	logger *zap.SugaredLogger
}

// NewLogChannel constructs a log-backed channel.
func NewLogChannel(logger *zap.SugaredLogger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogChannel{logger: logger}
}

// Name identifies the channel.
func (*LogChannel) Name() string { return "log" }

// Send logs the notification.
func (c *LogChannel) Send(_ context.Context, subject, message string) error {
	c.logger.Infow("notification", "subject", subject, "message", message)
	return nil
}

// MultiChannel fans a notification out to several channels. The first
// error is reported after all channels were tried.
type MultiChannel struct {
	channels []Channel
}

// NewMultiChannel constructs a MultiChannel.
func NewMultiChannel(channels ...Channel) *MultiChannel {
	return &MultiChannel{channels: channels}
}

// Name identifies the channel.
func (*MultiChannel) Name() string { return "multi" }

// Send forwards to all channels.
func (m *MultiChannel) Send(ctx context.Context, subject, message string) error {
	var first error
	for _, channel := range m.channels {
		if channel == nil {
			continue
		}
		if err := channel.Send(ctx, subject, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Alerter adapts a Channel to the aggregator's expiry notifier contract.
type Alerter struct {
	channel Channel
}

// NewAlerter constructs an Alerter.
func NewAlerter(channel Channel) *Alerter {
	return &Alerter{channel: channel}
}

// Notify sends one alert.
func (a *Alerter) Notify(ctx context.Context, subject, message string) error {
	if a == nil || a.channel == nil {
		return nil
	}
	return a.channel.Send(ctx, subject, message)
}
