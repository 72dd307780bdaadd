// Copyright (C) 2026 quietwire.dev <relay@quietwire.dev>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package relay

import (
	"testing"
	"time"

	"github.com/quietwire/relay/backend/models"
)

func TestActiveDevicesExcludesAgedOut(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	account := &models.Account{
		Number: "+14152222222",
		Devices: []models.Device{
			{ID: 1, LastSeen: now.Add(-time.Hour)},
			{ID: 2, LastSeen: now.Add(-29 * 24 * time.Hour)},
			{ID: 3, LastSeen: now.Add(-31 * 24 * time.Hour)},
		},
	}

	active := ActiveDevices(account, now)
	if len(active) != 2 {
		t.Fatalf("got %d active devices, want 2", len(active))
	}
	if active[0].ID != 1 || active[1].ID != 2 {
		t.Fatalf("active ids = [%d %d], want [1 2]", active[0].ID, active[1].ID)
	}
}

func TestActiveDevicesWindowBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	account := &models.Account{
		Number: "+14151111111",
		Devices: []models.Device{
			{ID: 1, LastSeen: now.Add(-ActivityWindow)},
			{ID: 2, LastSeen: now.Add(-ActivityWindow - time.Second)},
		},
	}

	active := ActiveDevices(account, now)
	if len(active) != 1 || active[0].ID != 1 {
		t.Fatalf("exactly the on-boundary device should remain, got %v", active)
	}
}

// The filter is a pure function of (snapshot, now): the same snapshot gives a
// different answer once now has moved past a device's window.
func TestActiveDevicesRecomputedPerCall(t *testing.T) {
	seen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	account := &models.Account{
		Number:  "+14151111111",
		Devices: []models.Device{{ID: 1, LastSeen: seen}},
	}

	early := seen.Add(29 * 24 * time.Hour)
	late := seen.Add(31 * 24 * time.Hour)

	if got := ActiveDevices(account, early); len(got) != 1 {
		t.Fatalf("device should be active at %v", early)
	}
	if got := ActiveDevices(account, late); len(got) != 0 {
		t.Fatalf("device should have aged out at %v", late)
	}
}
