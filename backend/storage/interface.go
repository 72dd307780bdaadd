// Copyright (C) 2026 quietwire.dev <relay@quietwire.dev>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package storage

import (
	"context"
	"time"

	"github.com/quietwire/relay/backend/models"
)

// AccountStore is the account/device directory. GetAccount returns (nil, nil)
// for an unknown identity.
type AccountStore interface {
	GetAccount(ctx context.Context, number string) (*models.Account, error)
	UpsertAccount(ctx context.Context, account *models.Account) error
	TouchDevice(ctx context.Context, number string, deviceID uint32, seen time.Time) error
}

// MessageStore is the durable per-device message queue. List returns entities
// in append (FIFO) order. Delete removes at most one entity matching
// (source, timestamp) and returns (nil, nil) when none matched.
type MessageStore interface {
	Append(ctx context.Context, destination string, deviceID uint32, env models.Envelope) (models.MessageEntity, error)
	List(ctx context.Context, destination string, deviceID uint32) ([]models.MessageEntity, error)
	Delete(ctx context.Context, destination string, deviceID uint32, source string, timestamp int64) (*models.MessageEntity, error)
}

// PushSender wakes a destination device after its queue grows. Delivery
// mechanics per platform are the implementation's concern.
type PushSender interface {
	SendMessage(ctx context.Context, account *models.Account, device models.Device, env models.Envelope) error
}

// ReceiptSender notifies a message's original sender that the recipient
// consumed it. The relay flag is carried opaque for federated senders.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, source string, sourceDevice uint32, destination string, timestamp int64, relay string) error
}
