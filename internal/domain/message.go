package domain

import (
	"fmt"
)

// Origin distinguishes one-to-one chats from group chats.
type Origin int

const (
	OriginIndividual Origin = iota
	OriginGroup
)

func (o Origin) String() string {
	if o == OriginGroup {
		return "group"
	}
	return "individual"
}

// InboundMessage is the canonical shape of one received chat message,
// regardless of which transport variant delivered it. Immutable once
// constructed.
type InboundMessage struct {
	SenderID    string
	Timestamp   int64 // milliseconds since epoch
	Text        string
	Attachments []string
	Origin      Origin
	GroupID     string // set iff Origin == OriginGroup
	GroupName   string
}

// Identity is the deduplication key: a message delivered more than once
// by an at-least-once transport produces the same identity each time.
func (m InboundMessage) Identity() string {
	return fmt.Sprintf("%d:%s:%s", m.Timestamp, m.SenderID, m.GroupID)
}

// Target returns where a reply to this message should go: group
// messages are answered in the group, individual messages to the sender.
func (m InboundMessage) Target() ReplyTarget {
	if m.Origin == OriginGroup {
		return ReplyTarget{GroupID: m.GroupID}
	}
	return ReplyTarget{Recipient: m.SenderID}
}

// ReplyTarget addresses an outbound message. Exactly one of Recipient
// or GroupID is set.
type ReplyTarget struct {
	Recipient string
	GroupID   string
}

func (t ReplyTarget) String() string {
	if t.GroupID != "" {
		return "group:" + t.GroupID
	}
	return t.Recipient
}

// GroupInfo describes one chat group as reported by the backend.
type GroupInfo struct {
	ID      string
	Name    string
	Members []string
}
