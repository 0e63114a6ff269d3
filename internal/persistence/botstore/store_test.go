package botstore

import (
	"path/filepath"
	"testing"

	"botswarm.ai/internal/protocol"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "bots.db"), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestStore_CreateGetUpdateDelete(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rec, err := st.Create("miner")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if rec.ID == "" || rec.Status != protocol.StatusOffline || rec.Health != 20 {
				t.Fatalf("unexpected record: %+v", rec)
			}

			got, ok := st.Get(rec.ID)
			if !ok || got.Name != "miner" {
				t.Fatalf("get: %+v %v", got, ok)
			}

			status := protocol.StatusOnline
			pos := protocol.Vec3{X: 1, Y: 64, Z: -2}
			up := int64(42)
			inv := []protocol.Slot{{Slot: 0, Name: "stone_pickaxe", Count: 1}}
			got, ok = st.Update(rec.ID, Patch{
				Status:        &status,
				Position:      &pos,
				UptimeSeconds: &up,
				Inventory:     &inv,
			})
			if !ok {
				t.Fatalf("update failed")
			}
			if got.Status != protocol.StatusOnline || got.Position == nil || got.Position.Y != 64 {
				t.Fatalf("patch not applied: %+v", got)
			}
			if got.UptimeSeconds != 42 || len(got.Inventory) != 1 {
				t.Fatalf("patch not applied: %+v", got)
			}
			// Untouched fields survive a partial patch.
			if got.Name != "miner" || got.Health != 20 {
				t.Fatalf("unrelated fields changed: %+v", got)
			}

			reread, ok := st.Get(rec.ID)
			if !ok || reread.Status != protocol.StatusOnline || len(reread.Inventory) != 1 {
				t.Fatalf("update not persisted: %+v", reread)
			}

			if !st.Delete(rec.ID) {
				t.Fatalf("delete returned false")
			}
			if st.Delete(rec.ID) {
				t.Fatalf("second delete must return false")
			}
			if _, ok := st.Get(rec.ID); ok {
				t.Fatalf("record still present after delete")
			}
		})
	}
}

func TestStore_UpdateAbsent(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok := st.Update("bot_missing", Patch{}); ok {
				t.Fatalf("update of absent id must report absent")
			}
		})
	}
}

func TestStore_AllOrdered(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a, _ := st.Create("a")
			b, _ := st.Create("b")
			all := st.All()
			if len(all) != 2 {
				t.Fatalf("len = %d", len(all))
			}
			if all[0].ID != a.ID || all[1].ID != b.ID {
				t.Fatalf("not in creation order: %+v", all)
			}
		})
	}
}
