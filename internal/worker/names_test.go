package worker

import (
	"context"
	"testing"

	"github.com/shaiso/patrol/internal/device"
)

func TestNameCache_Describe(t *testing.T) {
	sim := device.NewSimulator(device.SimulatorConfig{
		Shelves:   []device.Shelf{{ID: "S1", Name: "Cart A"}},
		Locations: []device.Location{{ID: "L1", Name: "Room 101"}},
		Logger:    discardLogger(),
	})
	c := newNameCache()
	c.refresh(context.Background(), sim, discardLogger())

	got := c.describe(map[string]any{"shelf_id": "S1", "location_id": "L1", "seconds": 2})
	want := "location_id=L1(Room 101) seconds=2 shelf_id=S1(Cart A)"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if name := c.locationName("L9"); name != "L9" {
		t.Errorf("unknown location should fall back to id, got %s", name)
	}
}
