// Copyright (C) 2026 quietwire.dev <relay@quietwire.dev>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quietwire/relay/backend/models"
	"github.com/quietwire/relay/backend/storage"
)

// ReceiptCoordinator delivers delivery receipts back to a message's original
// sender through the normal dispatch path. A receipt for a vanished sender is
// dropped, not an error: the deleting client already got what it asked for.
type ReceiptCoordinator struct {
	accounts   storage.AccountStore
	dispatcher *Dispatcher
	log        *zap.Logger
	now        func() time.Time
}

func NewReceiptCoordinator(accounts storage.AccountStore, dispatcher *Dispatcher, log *zap.Logger) *ReceiptCoordinator {
	return &ReceiptCoordinator{
		accounts:   accounts,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
	}
}

// SendReceipt queues a receipt-type envelope carrying the original message
// timestamp on every active device of the destination account.
func (c *ReceiptCoordinator) SendReceipt(ctx context.Context, source string, sourceDevice uint32, destination string, timestamp int64, relay string) error {
	account, err := c.accounts.GetAccount(ctx, destination)
	if err != nil {
		return err
	}
	if account == nil {
		c.log.Warn("receipt destination unknown", zap.String("destination", destination))
		return nil
	}

	devices := ActiveDevices(account, c.now())
	if len(devices) == 0 {
		c.log.Warn("receipt destination has no active devices", zap.String("destination", destination))
		return nil
	}

	env := models.Envelope{
		Type:         models.TypeReceipt,
		Source:       source,
		SourceDevice: sourceDevice,
		Relay:        relay,
		Timestamp:    timestamp,
	}
	return c.dispatcher.SendToDevices(ctx, account, devices, env)
}
