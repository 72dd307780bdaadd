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

func (s *Store) Migrate() error {
	migrations := []string{
		// Accounts table
		`CREATE TABLE IF NOT EXISTS accounts (
			number VARCHAR(255) PRIMARY KEY,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Devices table. registration_id is the device's crypto session epoch;
		// last_seen drives the activity window.
		`CREATE TABLE IF NOT EXISTS devices (
			number VARCHAR(255) NOT NULL,
			device_id INTEGER NOT NULL,
			registration_id INTEGER NOT NULL,
			prekey_id INTEGER,
			prekey_public BYTEA,
			prekey_signature BYTEA,
			last_seen TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (number, device_id),
			FOREIGN KEY (number) REFERENCES accounts(number) ON DELETE CASCADE
		)`,

		// Index for activity-window scans
		`CREATE INDEX IF NOT EXISTS idx_devices_last_seen
		ON devices(number, last_seen)`,

		// Note: queued messages live in Redis; no message tables here.
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
