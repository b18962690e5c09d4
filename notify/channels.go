// Package notify fans lifecycle notifications out over push, email and SMS.
// Everything here is fire-and-forget: delivery failures are logged and never
// surfaced to the caller, so a slow channel cannot corrupt job state.
package notify

import (
	"context"
	"time"
)

// Tag is one recipient predicate in a push audience expression. Recipients
// are addressed by their email tag; multiple tags combine with OR.
type Tag struct {
	Key      string
	Relation string
	Value    string
}

// EmailTags builds the audience expression selecting the given addresses.
func EmailTags(emails []string) []Tag {
	tags := make([]Tag, 0, len(emails))
	for _, e := range emails {
		tags = append(tags, Tag{Key: "email", Relation: "=", Value: e})
	}
	return tags
}

// PushMessage is one outbound push notification.
type PushMessage struct {
	Tags         []Tag
	Title        string
	Text         string
	Data         map[string]any
	IOSSound     string
	AndroidSound string

	// SendAfter schedules delivery instead of sending immediately. Used for
	// recipients who opted out of nighttime pushes.
	SendAfter *time.Time
}

// PushGateway delivers push notifications through a third-party service.
type PushGateway interface {
	Send(ctx context.Context, msg PushMessage) error
}

// Mailer sends a templated email. The template name selects the body; the
// payload carries the interpolation data.
type Mailer interface {
	Send(ctx context.Context, to, name, subject, template string, payload map[string]any) error
}

// SMSSender sends one text message and reports the gateway's delivery status.
type SMSSender interface {
	Send(ctx context.Context, from, to, body string) (string, error)
}
