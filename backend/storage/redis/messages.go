// Copyright (C) 2026 quietwire.dev <relay@quietwire.dev>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/quietwire/relay/backend/models"
)

const (
	// Queued messages expire after the device activity window: a device that
	// has not fetched for that long is no longer in any sender's required set.
	messageTTL = 30 * 24 * time.Hour

	queuePrefix = "msg:queue:" // msg:queue:{number}:{device} - list of storage ids
	itemPrefix  = "msg:item:"  // msg:item:{storageId} - entity JSON
)

// MessageStore keeps one FIFO queue per destination device. The queue holds
// storage ids; entities live under per-message keys so they can expire
// independently of their queue position.
type MessageStore struct {
	rdb *redis.Client
}

func NewMessageStore(rdb *redis.Client) *MessageStore {
	return &MessageStore{rdb: rdb}
}

func queueKey(number string, deviceID uint32) string {
	return fmt.Sprintf("%s%s:%d", queuePrefix, number, deviceID)
}

// Append stores an envelope at the tail of the device's queue and returns the
// stored entity with its newly assigned storage id.
func (s *MessageStore) Append(ctx context.Context, destination string, deviceID uint32, env models.Envelope) (models.MessageEntity, error) {
	entity := models.MessageEntity{
		StorageID: models.StorageID(uuid.New().String()),
		Envelope:  env,
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return models.MessageEntity{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	itemKey := itemPrefix + string(entity.StorageID)
	if err := s.rdb.Set(ctx, itemKey, data, messageTTL).Err(); err != nil {
		return models.MessageEntity{}, fmt.Errorf("failed to store message: %w", err)
	}

	key := queueKey(destination, deviceID)
	if err := s.rdb.RPush(ctx, key, string(entity.StorageID)).Err(); err != nil {
		return models.MessageEntity{}, fmt.Errorf("failed to add to queue: %w", err)
	}
	s.rdb.Expire(ctx, key, messageTTL)

	return entity, nil
}

// List returns the device's queued entities in append order. Ids whose entity
// expired are pruned from the queue as they are encountered.
func (s *MessageStore) List(ctx context.Context, destination string, deviceID uint32) ([]models.MessageEntity, error) {
	key := queueKey(destination, deviceID)

	ids, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	entities := make([]models.MessageEntity, 0, len(ids))
	for _, id := range ids {
		data, err := s.rdb.Get(ctx, itemPrefix+id).Result()
		if err == redis.Nil {
			s.rdb.LRem(ctx, key, 1, id)
			continue
		} else if err != nil {
			return nil, fmt.Errorf("failed to read message: %w", err)
		}

		var entity models.MessageEntity
		if err := json.Unmarshal([]byte(data), &entity); err != nil {
			continue // Skip malformed entries
		}
		entities = append(entities, entity)
	}

	return entities, nil
}

// Delete removes the first queued entity matching (source, timestamp) and
// returns it. Returns (nil, nil) when nothing matched: callers treat deletion
// of an absent message as success.
func (s *MessageStore) Delete(ctx context.Context, destination string, deviceID uint32, source string, timestamp int64) (*models.MessageEntity, error) {
	key := queueKey(destination, deviceID)

	ids, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	for _, id := range ids {
		itemKey := itemPrefix + id
		data, err := s.rdb.Get(ctx, itemKey).Result()
		if err == redis.Nil {
			s.rdb.LRem(ctx, key, 1, id)
			continue
		} else if err != nil {
			return nil, fmt.Errorf("failed to read message: %w", err)
		}

		var entity models.MessageEntity
		if err := json.Unmarshal([]byte(data), &entity); err != nil {
			continue
		}

		if entity.Source == source && entity.Timestamp == timestamp {
			if err := s.rdb.LRem(ctx, key, 1, id).Err(); err != nil {
				return nil, fmt.Errorf("failed to remove from queue: %w", err)
			}
			s.rdb.Del(ctx, itemKey)
			return &entity, nil
		}
	}

	return nil, nil
}
