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

package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quietwire/relay/backend/models"
	"github.com/quietwire/relay/backend/storage"
)

// ErrStoreFailed means at least one device's queue append failed. Entities
// already appended for sibling devices are not rolled back.
var ErrStoreFailed = errors.New("message store unavailable")

// BodyError is a client error: an envelope body that is not valid base64.
// Detected before any side effect.
type BodyError struct {
	DeviceID uint32
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("undecodable message body for device %d", e.DeviceID)
}

// Dispatcher fans one validated submission out to the destination's devices.
// Per-device store+push operations run concurrently and independently; one
// device's failure never blocks or unwinds its siblings.
type Dispatcher struct {
	messages storage.MessageStore
	pusher   storage.PushSender
	log      *zap.Logger
}

func NewDispatcher(messages storage.MessageStore, pusher storage.PushSender, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		messages: messages,
		pusher:   pusher,
		log:      log,
	}
}

type delivery struct {
	device models.Device
	env    models.Envelope
}

// Dispatch builds one envelope per validated entry and fans them out. All
// bodies are decoded before the first append so a malformed entry produces a
// zero-side-effect client error. A zero list timestamp is replaced with the
// server clock.
func (d *Dispatcher) Dispatch(ctx context.Context, account *models.Account, source string, sourceDevice uint32, list *models.IncomingMessageList) error {
	timestamp := list.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}

	deliveries := make([]delivery, 0, len(list.Messages))
	for _, m := range list.Messages {
		body, err := base64.StdEncoding.DecodeString(m.Body)
		if err != nil {
			return &BodyError{DeviceID: m.DestinationDeviceID}
		}

		device := account.Device(m.DestinationDeviceID)
		if device == nil {
			return fmt.Errorf("dispatch to unknown device %d of %s", m.DestinationDeviceID, account.Number)
		}

		deliveries = append(deliveries, delivery{
			device: *device,
			env: models.Envelope{
				Type:         m.Type,
				Source:       source,
				SourceDevice: sourceDevice,
				Relay:        m.Relay,
				Timestamp:    timestamp,
				Message:      body,
			},
		})
	}

	return d.fanout(ctx, account, deliveries)
}

// SendToDevices dispatches a single envelope to each of the given devices.
// Used by the receipt path, where every active device gets the same signal.
func (d *Dispatcher) SendToDevices(ctx context.Context, account *models.Account, devices []models.Device, env models.Envelope) error {
	deliveries := make([]delivery, 0, len(devices))
	for _, device := range devices {
		deliveries = append(deliveries, delivery{device: device, env: env})
	}
	return d.fanout(ctx, account, deliveries)
}

func (d *Dispatcher) fanout(ctx context.Context, account *models.Account, deliveries []delivery) error {
	var wg sync.WaitGroup
	var storeFailures int32

	for _, dl := range deliveries {
		wg.Add(1)
		go func(dl delivery) {
			defer wg.Done()

			if _, err := d.messages.Append(ctx, account.Number, dl.device.ID, dl.env); err != nil {
				atomic.AddInt32(&storeFailures, 1)
				d.log.Error("queue append failed",
					zap.String("destination", account.Number),
					zap.Uint32("device", dl.device.ID),
					zap.Error(err))
				return
			}

			// Push is best effort: the entity is queued and will be picked up
			// on the device's next fetch regardless.
			if err := d.pusher.SendMessage(ctx, account, dl.device, dl.env); err != nil {
				d.log.Warn("push notification failed",
					zap.String("destination", account.Number),
					zap.Uint32("device", dl.device.ID),
					zap.Error(err))
			}
		}(dl)
	}

	wg.Wait()

	if atomic.LoadInt32(&storeFailures) > 0 {
		return ErrStoreFailed
	}
	return nil
}
