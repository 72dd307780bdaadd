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

package models

import (
	"time"
)

type SignedPreKey struct {
	KeyID     uint32 `json:"keyId" db:"prekey_id"`
	PublicKey []byte `json:"publicKey" db:"public_key"`
	Signature []byte `json:"signature" db:"signature"`
}

// Device is one registered endpoint of an account. RegistrationID identifies
// the device's current cryptographic session epoch and changes on reinstall.
type Device struct {
	ID             uint32        `json:"id" db:"device_id"`
	RegistrationID uint32        `json:"registrationId" db:"registration_id"`
	SignedPreKey   *SignedPreKey `json:"signedPreKey,omitempty"`
	LastSeen       time.Time     `json:"lastSeen" db:"last_seen"`
	CreatedAt      time.Time     `json:"createdAt" db:"created_at"`
}

// Account owns a set of devices, unique by device id. The set is mutated by
// provisioning flows outside this service; every request reads a fresh copy.
type Account struct {
	Number    string    `json:"number" db:"number"`
	Devices   []Device  `json:"devices"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Device returns the device with the given id, or nil.
func (a *Account) Device(id uint32) *Device {
	for i := range a.Devices {
		if a.Devices[i].ID == id {
			return &a.Devices[i]
		}
	}
	return nil
}
