// Package signal implements the chat transport in its two variants: a
// long-polling REST client and a persistent JSON-RPC socket client.
// Both normalize raw envelopes into domain.InboundMessage before
// handing them to the bridge, so the bridge stays transport-agnostic.
package signal

import (
	"sigbridge/internal/domain"
)

// envelope is one raw inbound unit from the chat backend. Both the
// REST and socket surfaces carry the same shape.
type envelope struct {
	Envelope struct {
		Source      string       `json:"source"`
		Timestamp   int64        `json:"timestamp"`
		DataMessage *dataMessage `json:"dataMessage"`
	} `json:"envelope"`
}

type dataMessage struct {
	Message     string       `json:"message"`
	Timestamp   int64        `json:"timestamp"`
	GroupInfo   *groupInfo   `json:"groupInfo"`
	Attachments []attachment `json:"attachments"`
}

type groupInfo struct {
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
}

type attachment struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
}

// normalize converts a raw envelope into the canonical inbound record.
// Envelopes without a data message (receipts, typing indicators) yield
// ok == false and are skipped.
func normalize(env envelope) (domain.InboundMessage, bool) {
	dm := env.Envelope.DataMessage
	if dm == nil {
		return domain.InboundMessage{}, false
	}

	ts := dm.Timestamp
	if ts == 0 {
		ts = env.Envelope.Timestamp
	}

	msg := domain.InboundMessage{
		SenderID:  env.Envelope.Source,
		Timestamp: ts,
		Text:      dm.Message,
	}
	for _, a := range dm.Attachments {
		name := a.Filename
		if name == "" {
			name = a.ID
		}
		msg.Attachments = append(msg.Attachments, name)
	}
	if dm.GroupInfo != nil && dm.GroupInfo.GroupID != "" {
		msg.Origin = domain.OriginGroup
		msg.GroupID = dm.GroupInfo.GroupID
		msg.GroupName = dm.GroupInfo.Name
	}
	return msg, true
}
