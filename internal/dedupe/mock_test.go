package dedupe

import (
	"context"

	"github.com/communityfood/discovery-engine/internal/model"
)

type mockTombstones struct {
	byAddress map[string]*model.Tombstone
	err       error
	lookups   []string
}

func (m *mockTombstones) FindTombstone(_ context.Context, normalizedAddress string) (*model.Tombstone, error) {
	m.lookups = append(m.lookups, normalizedAddress)
	if m.err != nil {
		return nil, m.err
	}
	return m.byAddress[normalizedAddress], nil
}

type mockInventory struct {
	records []model.InventoryRecord
	err     error
	boxes   []model.BoundingBox
}

func (m *mockInventory) FindInBoundingBox(_ context.Context, box model.BoundingBox) ([]model.InventoryRecord, error) {
	m.boxes = append(m.boxes, box)
	if m.err != nil {
		return nil, m.err
	}
	var out []model.InventoryRecord
	for _, r := range m.records {
		if r.Latitude >= box.MinLat && r.Latitude <= box.MaxLat &&
			r.Longitude >= box.MinLng && r.Longitude <= box.MaxLng {
			out = append(out, r)
		}
	}
	return out, nil
}
