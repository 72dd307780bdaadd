// Copyright (C) 2026 quietwire.dev <relay@quietwire.dev>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package relay

import (
	"time"

	"github.com/quietwire/relay/backend/models"
)

// ActivityWindow is how long a device stays in the required set after its
// last successful session activity.
const ActivityWindow = 30 * 24 * time.Hour

// ActiveDevices returns the subset of the account's devices seen within the
// activity window of now. Pure function of the snapshot: callers re-evaluate
// on every request so a device that ages out between two submissions drops
// out of the required set on the later one.
func ActiveDevices(account *models.Account, now time.Time) []models.Device {
	var active []models.Device
	for _, d := range account.Devices {
		if now.Sub(d.LastSeen) <= ActivityWindow {
			active = append(active, d)
		}
	}
	return active
}
