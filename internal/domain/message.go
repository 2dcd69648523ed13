package domain

import "time"

// InboundMessage is a guest message arriving from a channel adapter.
type InboundMessage struct {
	Channel     string
	ExternalID  string // sender identity within the channel (chat id, phone number)
	DisplayName string
	Username    string
	Text        string
	Timestamp   time.Time
}

// OutboundMessage is a reply to be delivered to a guest through a channel adapter.
type OutboundMessage struct {
	Channel    string
	ExternalID string
	Text       string
}
