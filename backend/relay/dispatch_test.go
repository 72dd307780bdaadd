// Copyright (C) 2026 quietwire.dev <relay@quietwire.dev>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quietwire/relay/backend/models"
)

type appendCall struct {
	destination string
	deviceID    uint32
	env         models.Envelope
}

type fakeMessageStore struct {
	mu      sync.Mutex
	appends []appendCall
	failFor map[uint32]bool

	listOut   []models.MessageEntity
	deleteOut *models.MessageEntity
}

func (s *fakeMessageStore) Append(ctx context.Context, destination string, deviceID uint32, env models.Envelope) (models.MessageEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[deviceID] {
		return models.MessageEntity{}, fmt.Errorf("append failed for device %d", deviceID)
	}
	s.appends = append(s.appends, appendCall{destination, deviceID, env})
	return models.MessageEntity{StorageID: "stored", Envelope: env}, nil
}

func (s *fakeMessageStore) List(ctx context.Context, destination string, deviceID uint32) ([]models.MessageEntity, error) {
	return s.listOut, nil
}

func (s *fakeMessageStore) Delete(ctx context.Context, destination string, deviceID uint32, source string, timestamp int64) (*models.MessageEntity, error) {
	return s.deleteOut, nil
}

func (s *fakeMessageStore) appendedDevices() map[uint32]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint32]int)
	for _, c := range s.appends {
		out[c.deviceID]++
	}
	return out
}

type fakePusher struct {
	mu      sync.Mutex
	sent    []uint32
	failFor map[uint32]bool
}

func (p *fakePusher) SendMessage(ctx context.Context, account *models.Account, device models.Device, env models.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[device.ID] {
		return errors.New("push transport down")
	}
	p.sent = append(p.sent, device.ID)
	return nil
}

func (p *fakePusher) sentDevices() map[uint32]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[uint32]int)
	for _, id := range p.sent {
		out[id]++
	}
	return out
}

func testAccount(devices ...models.Device) *models.Account {
	return &models.Account{Number: "+14152222222", Devices: devices}
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestDispatchFansOutOncePerDevice(t *testing.T) {
	store := &fakeMessageStore{}
	pusher := &fakePusher{}
	d := NewDispatcher(store, pusher, zap.NewNop())

	account := testAccount(device(1, 111), device(2, 222), device(3, 333))
	list := &models.IncomingMessageList{
		Timestamp: 313377,
		Messages: []models.IncomingMessage{
			{Type: models.TypeCiphertext, DestinationDeviceID: 1, Body: b64("one")},
			{Type: models.TypeCiphertext, DestinationDeviceID: 2, Body: b64("two")},
			{Type: models.TypeCiphertext, DestinationDeviceID: 3, Body: b64("three")},
		},
	}

	if err := d.Dispatch(context.Background(), account, "+14151111111", 1, list); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	appends := store.appendedDevices()
	pushes := pusher.sentDevices()
	for _, id := range []uint32{1, 2, 3} {
		if appends[id] != 1 {
			t.Fatalf("device %d appended %d times, want 1", id, appends[id])
		}
		if pushes[id] != 1 {
			t.Fatalf("device %d pushed %d times, want 1", id, pushes[id])
		}
	}
}

func TestDispatchEnvelopeContents(t *testing.T) {
	store := &fakeMessageStore{}
	d := NewDispatcher(store, &fakePusher{}, zap.NewNop())

	account := testAccount(device(2, 222))
	list := &models.IncomingMessageList{
		Timestamp: 313377,
		Messages: []models.IncomingMessage{
			{Type: models.TypeCiphertext, DestinationDeviceID: 2, Body: b64("hi there"), Relay: "relay.example.org"},
		},
	}

	if err := d.Dispatch(context.Background(), account, "+14151111111", 3, list); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if len(store.appends) != 1 {
		t.Fatalf("got %d appends, want 1", len(store.appends))
	}
	env := store.appends[0].env
	if env.Source != "+14151111111" || env.SourceDevice != 3 {
		t.Fatalf("wrong source identity: %s/%d", env.Source, env.SourceDevice)
	}
	if env.Timestamp != 313377 {
		t.Fatalf("timestamp = %d, want 313377", env.Timestamp)
	}
	if string(env.Message) != "hi there" {
		t.Fatalf("body = %q, want %q", env.Message, "hi there")
	}
	if env.Relay != "relay.example.org" {
		t.Fatalf("relay flag dropped: %q", env.Relay)
	}
}

func TestDispatchDefaultsZeroTimestamp(t *testing.T) {
	store := &fakeMessageStore{}
	d := NewDispatcher(store, &fakePusher{}, zap.NewNop())

	account := testAccount(device(1, 111))
	list := &models.IncomingMessageList{
		Messages: []models.IncomingMessage{
			{Type: models.TypeCiphertext, DestinationDeviceID: 1, Body: b64("x")},
		},
	}

	before := time.Now().UnixMilli()
	if err := d.Dispatch(context.Background(), account, "+14151111111", 1, list); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	after := time.Now().UnixMilli()

	ts := store.appends[0].env.Timestamp
	if ts < before || ts > after {
		t.Fatalf("timestamp %d not in server-clock range [%d, %d]", ts, before, after)
	}
}

func TestDispatchPushFailureDoesNotBlockSiblings(t *testing.T) {
	store := &fakeMessageStore{}
	pusher := &fakePusher{failFor: map[uint32]bool{2: true}}
	d := NewDispatcher(store, pusher, zap.NewNop())

	account := testAccount(device(1, 111), device(2, 222), device(3, 333))
	list := &models.IncomingMessageList{
		Timestamp: 1,
		Messages: []models.IncomingMessage{
			{Type: models.TypeCiphertext, DestinationDeviceID: 1, Body: b64("a")},
			{Type: models.TypeCiphertext, DestinationDeviceID: 2, Body: b64("b")},
			{Type: models.TypeCiphertext, DestinationDeviceID: 3, Body: b64("c")},
		},
	}

	if err := d.Dispatch(context.Background(), account, "+14151111111", 1, list); err != nil {
		t.Fatalf("push failure must not fail the request: %v", err)
	}

	if got := store.appendedDevices(); len(got) != 3 {
		t.Fatalf("all three entities should be stored, got %v", got)
	}
	pushes := pusher.sentDevices()
	if pushes[1] != 1 || pushes[3] != 1 {
		t.Fatalf("sibling pushes were affected: %v", pushes)
	}
}

func TestDispatchStoreFailureReportedAfterAllAttempted(t *testing.T) {
	store := &fakeMessageStore{failFor: map[uint32]bool{2: true}}
	pusher := &fakePusher{}
	d := NewDispatcher(store, pusher, zap.NewNop())

	account := testAccount(device(1, 111), device(2, 222), device(3, 333))
	list := &models.IncomingMessageList{
		Timestamp: 1,
		Messages: []models.IncomingMessage{
			{Type: models.TypeCiphertext, DestinationDeviceID: 1, Body: b64("a")},
			{Type: models.TypeCiphertext, DestinationDeviceID: 2, Body: b64("b")},
			{Type: models.TypeCiphertext, DestinationDeviceID: 3, Body: b64("c")},
		},
	}

	err := d.Dispatch(context.Background(), account, "+14151111111", 1, list)
	if !errors.Is(err, ErrStoreFailed) {
		t.Fatalf("Dispatch returned %v, want ErrStoreFailed", err)
	}

	// No rollback of siblings, and the failed device got no push.
	appends := store.appendedDevices()
	if appends[1] != 1 || appends[3] != 1 {
		t.Fatalf("sibling appends were affected: %v", appends)
	}
	if pushes := pusher.sentDevices(); pushes[2] != 0 {
		t.Fatalf("failed device must not be pushed: %v", pushes)
	}
}

func TestDispatchBadBodyHasNoSideEffects(t *testing.T) {
	store := &fakeMessageStore{}
	pusher := &fakePusher{}
	d := NewDispatcher(store, pusher, zap.NewNop())

	account := testAccount(device(1, 111), device(2, 222))
	list := &models.IncomingMessageList{
		Timestamp: 1,
		Messages: []models.IncomingMessage{
			{Type: models.TypeCiphertext, DestinationDeviceID: 1, Body: b64("fine")},
			{Type: models.TypeCiphertext, DestinationDeviceID: 2, Body: "not base64!!!"},
		},
	}

	err := d.Dispatch(context.Background(), account, "+14151111111", 1, list)
	var bodyErr *BodyError
	if !errors.As(err, &bodyErr) {
		t.Fatalf("Dispatch returned %v, want BodyError", err)
	}
	if bodyErr.DeviceID != 2 {
		t.Fatalf("BodyError for device %d, want 2", bodyErr.DeviceID)
	}
	if len(store.appends) != 0 || len(pusher.sent) != 0 {
		t.Fatalf("client error after side effects: %d appends, %d pushes", len(store.appends), len(pusher.sent))
	}
}
