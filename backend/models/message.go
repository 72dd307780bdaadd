// Copyright (C) 2026 quietwire.dev <relay@quietwire.dev>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

// Wire type codes for envelopes. Receipt is the only non-content type: deleting
// a receipt never triggers another receipt.
const (
	TypeUnknown      int32 = 0
	TypeCiphertext   int32 = 1
	TypeKeyExchange  int32 = 2
	TypePrekeyBundle int32 = 3
	TypeReceipt      int32 = 5
)

// IncomingMessage is one per-device ciphertext in a sender's fan-out envelope.
type IncomingMessage struct {
	Type                      int32  `json:"type"`
	DestinationDeviceID       uint32 `json:"destinationDeviceId"`
	DestinationRegistrationID uint32 `json:"destinationRegistrationId"`
	Body                      string `json:"body,omitempty"`
	Relay                     string `json:"relay,omitempty"`
}

// IncomingMessageList is the sender-submitted envelope. Destination is only
// set by legacy clients posting without a destination in the path. A zero
// Timestamp means the server substitutes its own clock.
type IncomingMessageList struct {
	Destination string            `json:"destination,omitempty"`
	Timestamp   int64             `json:"timestamp,omitempty"`
	Messages    []IncomingMessage `json:"messages"`
}

// Envelope is the outgoing signal dispatched to exactly one destination device.
type Envelope struct {
	Type         int32  `json:"type"`
	Source       string `json:"source"`
	SourceDevice uint32 `json:"sourceDevice"`
	Relay        string `json:"relay,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	Message      []byte `json:"message,omitempty"`
}

// StorageID is assigned by the message store and never leaves the server.
// Acknowledgment identity on the wire is (source, timestamp), not this.
type StorageID string

// MessageEntity is an envelope at rest in a device's queue.
type MessageEntity struct {
	StorageID StorageID `json:"storageId"`
	Envelope
}

// OutgoingMessageEntity is the caller-visible form of a queued message.
// ID is always zero on the wire.
type OutgoingMessageEntity struct {
	ID           int64  `json:"id"`
	Type         int32  `json:"type"`
	Relay        string `json:"relay,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	Source       string `json:"source"`
	SourceDevice uint32 `json:"sourceDeviceId"`
	Message      []byte `json:"message,omitempty"`
}

type OutgoingMessageEntityList struct {
	Messages []OutgoingMessageEntity `json:"messages"`
}

// Outgoing converts a stored entity to its wire form, masking the storage id.
func (e MessageEntity) Outgoing() OutgoingMessageEntity {
	return OutgoingMessageEntity{
		ID:           0,
		Type:         e.Type,
		Relay:        e.Relay,
		Timestamp:    e.Timestamp,
		Source:       e.Source,
		SourceDevice: e.SourceDevice,
		Message:      e.Message,
	}
}

// MismatchedDevices is the 409 conflict payload: the submission's device set
// does not match the account's active device set.
type MismatchedDevices struct {
	MissingDevices []uint32 `json:"missingDevices"`
	ExtraDevices   []uint32 `json:"extraDevices"`
}

// StaleDevices is the 410 payload: correctly addressed devices whose submitted
// registration id disagrees with the stored one.
type StaleDevices struct {
	StaleDevices []uint32 `json:"staleDevices"`
}
