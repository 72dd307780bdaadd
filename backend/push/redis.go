// Copyright (C) 2026 quietwire.dev <relay@quietwire.dev>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quietwire/relay/backend/models"
)

const notifyPrefix = "msg:notify:" // msg:notify:{number}:{device}

// RedisPusher wakes connected devices over pub/sub. Devices with no active
// subscriber simply miss the wakeup and drain their queue on the next fetch.
type RedisPusher struct {
	rdb *redis.Client
}

func NewRedisPusher(rdb *redis.Client) *RedisPusher {
	return &RedisPusher{rdb: rdb}
}

func (p *RedisPusher) SendMessage(ctx context.Context, account *models.Account, device models.Device, env models.Envelope) error {
	notification, err := json.Marshal(map[string]interface{}{
		"type":         "new_message",
		"source":       env.Source,
		"sourceDevice": env.SourceDevice,
		"timestamp":    env.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	channel := fmt.Sprintf("%s%s:%d", notifyPrefix, account.Number, device.ID)
	return p.rdb.Publish(ctx, channel, notification).Err()
}

// Subscribe returns the pub/sub feed for one device's wakeups.
func (p *RedisPusher) Subscribe(ctx context.Context, number string, deviceID uint32) *redis.PubSub {
	return p.rdb.Subscribe(ctx, fmt.Sprintf("%s%s:%d", notifyPrefix, number, deviceID))
}
