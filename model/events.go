// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// EventType represents a webhook event kind subscribers can register for.
type EventType string

const (
	// EventTypeLinkCreated fires when a short link is created.
	EventTypeLinkCreated EventType = "link.created"
	// EventTypeLinkClicked fires when a short link is resolved.
	EventTypeLinkClicked EventType = "link.clicked"
	// EventTypeLinkUpdated fires when a short link is modified.
	EventTypeLinkUpdated EventType = "link.updated"
	// EventTypeLinkDeleted fires when a short link is removed.
	EventTypeLinkDeleted EventType = "link.deleted"
	// EventTypeLinkMilestone fires when a link crosses a click milestone.
	EventTypeLinkMilestone EventType = "link.milestone"
	// EventTypeQRScanned fires when a link QR code is scanned.
	EventTypeQRScanned EventType = "qr.scanned"
	// EventTypePagePublished fires when a landing page goes live.
	EventTypePagePublished EventType = "page.published"
	// EventTypePageViewed fires when a landing page is viewed.
	EventTypePageViewed EventType = "page.viewed"
	// EventTypeCommentCreated fires when a comment is left on a page.
	EventTypeCommentCreated EventType = "comment.created"
	// EventTypeUserInvited fires when a user joins a team.
	EventTypeUserInvited EventType = "user.invited"
	// EventTypeCampaignStarted fires when a campaign begins.
	EventTypeCampaignStarted EventType = "campaign.started"
	// EventTypeCampaignEnded fires when a campaign finishes.
	EventTypeCampaignEnded EventType = "campaign.ended"
	// EventTypeFormSubmitted fires when a capture form is submitted.
	EventTypeFormSubmitted EventType = "form.submitted"
	// EventTypeConversionTracked fires when a campaign goal is reached.
	EventTypeConversionTracked EventType = "conversion.tracked"
)

// EventTypes enumerates every webhook event kind the dispatcher recognizes.
// Kinds without an upstream routing only fire once a producer emits them.
var EventTypes = []EventType{
	EventTypeLinkCreated,
	EventTypeLinkClicked,
	EventTypeLinkUpdated,
	EventTypeLinkDeleted,
	EventTypeLinkMilestone,
	EventTypeQRScanned,
	EventTypePagePublished,
	EventTypePageViewed,
	EventTypeCommentCreated,
	EventTypeUserInvited,
	EventTypeCampaignStarted,
	EventTypeCampaignEnded,
	EventTypeFormSubmitted,
	EventTypeConversionTracked,
}

// IsValid returns true if the event type is a known value.
func (t EventType) IsValid() bool {
	for _, eventType := range EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// busEventTypes maps upstream bus event types to the webhook event kinds
// delivered to subscribers.
var busEventTypes = map[string]EventType{
	"link.created":          EventTypeLinkCreated,
	"link.updated":          EventTypeLinkUpdated,
	"link.deleted":          EventTypeLinkDeleted,
	"click.recorded":        EventTypeLinkClicked,
	"campaign.created":      EventTypeCampaignStarted,
	"campaign.goal.reached": EventTypeConversionTracked,
	"user.created":          EventTypeUserInvited,
}

// WebhookEventTypeFor translates an upstream bus event type to the webhook
// event kind it dispatches as. The second return is false for bus types the
// dispatcher does not route.
func WebhookEventTypeFor(busType string) (EventType, bool) {
	eventType, ok := busEventTypes[busType]
	return eventType, ok
}

// BusEvent is the envelope every upstream producer publishes on the bus.
type BusEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewBusEventFromReader decodes a bus event envelope. Any decode failure
// marks the message malformed; malformed messages are dropped, never requeued.
func NewBusEventFromReader(reader io.Reader) (*BusEvent, error) {
	var event BusEvent
	if err := json.NewDecoder(reader).Decode(&event); err != nil {
		return nil, errors.Wrap(ErrMalformedEvent, err.Error())
	}

	return &event, nil
}

// TeamID extracts the owning team from the event payload. Upstream events
// that carry no team return empty and cannot be dispatched.
func (e *BusEvent) TeamID() string {
	teamID, _ := e.Data["teamId"].(string)
	return teamID
}

// linkDataFields is the shared projection for link lifecycle events.
var linkDataFields = []string{"linkId", "shortCode", "originalUrl", "teamId", "userId", "tags"}

// eventDataFields lists, per webhook kind, which payload fields are forwarded
// to subscribers. Kinds not listed here pass their payload through unchanged.
var eventDataFields = map[EventType][]string{
	EventTypeLinkCreated:       linkDataFields,
	EventTypeLinkUpdated:       linkDataFields,
	EventTypeLinkDeleted:       linkDataFields,
	EventTypeLinkClicked:       {"linkId", "shortCode", "country", "city", "device", "browser", "referer"},
	EventTypeCampaignStarted:   {"campaignId", "name", "teamId"},
	EventTypeConversionTracked: {"campaignId", "goalId", "goalName", "currentValue", "targetValue", "userId"},
	EventTypeUserInvited:       {"userId", "email", "teamId"},
}

// ProjectData builds the event-specific payload sent to subscribers: the
// per-kind field projection plus the event identity fields. Fields absent
// from the bus payload are omitted rather than sent as null.
func (e *BusEvent) ProjectData(eventType EventType) map[string]interface{} {
	data := map[string]interface{}{
		"eventId":   e.ID,
		"eventType": string(eventType),
		"timestamp": e.Timestamp,
	}

	fields, shaped := eventDataFields[eventType]
	if !shaped {
		for field, value := range e.Data {
			if _, taken := data[field]; !taken {
				data[field] = value
			}
		}
		return data
	}

	for _, field := range fields {
		if value, ok := e.Data[field]; ok {
			data[field] = value
		}
	}
	return data
}
