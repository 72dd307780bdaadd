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

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quietwire/relay/backend/models"
)

// Store is the account/device directory. Devices and their registration state
// are written by provisioning flows; the relay only reads them, except for
// last-seen touches.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetAccount loads an account with its devices ordered by device id.
// Returns (nil, nil) for an unknown number.
func (s *Store) GetAccount(ctx context.Context, number string) (*models.Account, error) {
	account := &models.Account{Number: number}

	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM accounts WHERE number = $1`,
		number).Scan(&account.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, registration_id, prekey_id, prekey_public, prekey_signature, last_seen, created_at
		FROM devices
		WHERE number = $1
		ORDER BY device_id`, number)
	if err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var device models.Device
		var prekeyID sql.NullInt64
		var prekeyPublic, prekeySignature []byte

		if err := rows.Scan(&device.ID, &device.RegistrationID, &prekeyID,
			&prekeyPublic, &prekeySignature, &device.LastSeen, &device.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}

		if prekeyID.Valid {
			device.SignedPreKey = &models.SignedPreKey{
				KeyID:     uint32(prekeyID.Int64),
				PublicKey: prekeyPublic,
				Signature: prekeySignature,
			}
		}
		account.Devices = append(account.Devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return account, nil
}

// UpsertAccount writes an account and the current state of its devices.
// Devices absent from the given set are removed: the directory always holds
// the provisioning system's latest view.
func (s *Store) UpsertAccount(ctx context.Context, account *models.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (number, created_at)
		VALUES ($1, $2)
		ON CONFLICT (number) DO NOTHING`,
		account.Number, time.Now())
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM devices WHERE number = $1`, account.Number)
	if err != nil {
		return err
	}

	for _, device := range account.Devices {
		var prekeyID sql.NullInt64
		var prekeyPublic, prekeySignature []byte
		if device.SignedPreKey != nil {
			prekeyID = sql.NullInt64{Int64: int64(device.SignedPreKey.KeyID), Valid: true}
			prekeyPublic = device.SignedPreKey.PublicKey
			prekeySignature = device.SignedPreKey.Signature
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO devices (number, device_id, registration_id, prekey_id, prekey_public, prekey_signature, last_seen, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			account.Number, device.ID, device.RegistrationID,
			prekeyID, prekeyPublic, prekeySignature, device.LastSeen, time.Now())
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// TouchDevice records successful session activity for a device.
func (s *Store) TouchDevice(ctx context.Context, number string, deviceID uint32, seen time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE devices SET last_seen = $3
		WHERE number = $1 AND device_id = $2`,
		number, deviceID, seen)
	return err
}
