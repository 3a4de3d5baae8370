// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package ingest

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/watchrank/watchrank/internal/models"
)

// Serializer converts view events to and from Watermill messages.
type Serializer struct{}

// Marshal encodes an event into a message whose UUID doubles as the
// broker-side dedup identity.
func (Serializer) Marshal(ev *models.ViewEvent) (*message.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal view event: %w", err)
	}

	uuid := ev.EventID
	if uuid == "" {
		uuid = watermill.NewUUID()
	}
	msg := message.NewMessage(uuid, payload)
	msg.Metadata.Set("video_id", fmt.Sprintf("%d", ev.VideoID))
	return msg, nil
}

// Unmarshal decodes and validates an inbound message. Both decode and
// validation failures are permanent.
func (Serializer) Unmarshal(msg *message.Message) (*models.ViewEvent, error) {
	var ev models.ViewEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, NewPermanentError("malformed event payload", err)
	}
	if err := ev.Validate(); err != nil {
		return nil, NewPermanentError("invalid event", err)
	}
	return &ev, nil
}
