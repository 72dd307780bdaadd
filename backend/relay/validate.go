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
	"fmt"
	"sort"

	"github.com/quietwire/relay/backend/models"
)

// MismatchError reports a submission whose addressed device set differs from
// the account's active set. Clients recover by re-fetching the device list.
type MismatchError struct {
	Missing []uint32
	Extra   []uint32
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("mismatched devices: missing %v, extra %v", e.Missing, e.Extra)
}

// StaleError reports correctly addressed devices whose submitted registration
// id disagrees with the stored one. Clients recover by re-fetching prekeys.
type StaleError struct {
	Stale []uint32
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("stale devices: %v", e.Stale)
}

// Validate checks a submission against the account's active device set.
// A set mismatch is reported before any registration-id check runs, so a
// wrong topology is never masked as a staleness report.
func Validate(active []models.Device, list *models.IncomingMessageList) error {
	activeIDs := make([]uint32, 0, len(active))
	byID := make(map[uint32]models.Device, len(active))
	for _, d := range active {
		activeIDs = append(activeIDs, d.ID)
		byID[d.ID] = d
	}

	provided := make([]uint32, 0, len(list.Messages))
	seen := make(map[uint32]bool, len(list.Messages))
	for _, m := range list.Messages {
		if !seen[m.DestinationDeviceID] {
			seen[m.DestinationDeviceID] = true
			provided = append(provided, m.DestinationDeviceID)
		}
	}

	missing := diffIDs(activeIDs, provided)
	extra := diffIDs(provided, activeIDs)
	if len(missing) > 0 || len(extra) > 0 {
		return &MismatchError{Missing: missing, Extra: extra}
	}

	staleSeen := make(map[uint32]bool)
	stale := make([]uint32, 0)
	for _, m := range list.Messages {
		device := byID[m.DestinationDeviceID]
		if m.DestinationRegistrationID != device.RegistrationID && !staleSeen[m.DestinationDeviceID] {
			staleSeen[m.DestinationDeviceID] = true
			stale = append(stale, m.DestinationDeviceID)
		}
	}
	if len(stale) > 0 {
		sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
		return &StaleError{Stale: stale}
	}

	return nil
}

// diffIDs returns the members of a absent from b, sorted ascending. The sort
// keeps response payloads deterministic.
func diffIDs(a, b []uint32) []uint32 {
	inB := make(map[uint32]bool, len(b))
	for _, id := range b {
		inB[id] = true
	}

	out := make([]uint32, 0)
	for _, id := range a {
		if !inB[id] {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
