package fieldsync

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "local.db"))
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func testFarm(id string) *Farm {
	return &Farm{
		ID:        id,
		Name:      "North Farm",
		OwnerID:   "user-1",
		Latitude:  52.1,
		Longitude: 5.3,
		Country:   "NL",
		TotalArea: 42.5,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
		NeedsSync: true,
	}
}

func TestStoreRequiresInitialize(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "local.db"))

	if err := store.SaveFarm(ctx, testFarm("f1")); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("SaveFarm before Initialize = %v, want ErrNotInitialized", err)
	}
	if _, err := store.SyncQueue(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("SyncQueue before Initialize = %v, want ErrNotInitialized", err)
	}

	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	// Idempotent.
	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if err := store.SaveFarm(ctx, testFarm("f1")); err != nil {
		t.Fatalf("save after initialize: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.SaveFarm(ctx, testFarm("f2")); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("SaveFarm after Close = %v, want ErrNotInitialized", err)
	}
}

func TestStoreSaveFarmIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	farm := testFarm("farm-1")
	if err := store.SaveFarm(ctx, farm); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveFarm(ctx, farm); err != nil {
		t.Fatalf("second save: %v", err)
	}

	farms, err := store.ListFarms(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(farms) != 1 {
		t.Fatalf("expected 1 farm, got %d", len(farms))
	}
	if !reflect.DeepEqual(farms[0], farm) {
		t.Fatalf("farm changed across saves:\ngot  %+v\nwant %+v", farms[0], farm)
	}
}

func TestStoreGetAbsentReturnsNil(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	farm, err := store.GetFarm(ctx, "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if farm != nil {
		t.Fatalf("expected nil farm, got %+v", farm)
	}

	fields, err := store.ListFields(ctx, "missing")
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	if len(fields) != 0 {
		t.Fatalf("expected empty fields, got %d", len(fields))
	}
}

func TestStoreEntityHierarchy(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	farm := testFarm("farm-1")
	if err := store.SaveFarm(ctx, farm); err != nil {
		t.Fatalf("save farm: %v", err)
	}

	field := &Field{
		ID:        "field-1",
		FarmID:    farm.ID,
		Name:      "Back forty",
		Area:      16,
		SoilType:  "clay",
		CreatedAt: time.Unix(1700000100, 0).UTC(),
		NeedsSync: true,
	}
	if err := store.SaveField(ctx, field); err != nil {
		t.Fatalf("save field: %v", err)
	}

	crop := &Crop{
		ID:                  "crop-1",
		FieldID:             field.ID,
		CropType:            "corn",
		PlantingDate:        time.Unix(1700000200, 0).UTC(),
		ExpectedHarvestDate: time.Unix(1710000000, 0).UTC(),
		Status:              CropPlanted,
		CreatedAt:           time.Unix(1700000200, 0).UTC(),
		NeedsSync:           true,
	}
	if err := store.SaveCrop(ctx, crop); err != nil {
		t.Fatalf("save crop: %v", err)
	}

	photo := &Photo{
		ID:        "photo-1",
		FarmID:    farm.ID,
		FieldID:   field.ID,
		URI:       "file:///photos/p1.jpg",
		TakenAt:   time.Unix(1700000300, 0).UTC(),
		NeedsSync: true,
	}
	if err := store.SavePhoto(ctx, photo); err != nil {
		t.Fatalf("save photo: %v", err)
	}

	got, err := store.GetCrop(ctx, crop.ID)
	if err != nil {
		t.Fatalf("get crop: %v", err)
	}
	if !reflect.DeepEqual(got, crop) {
		t.Fatalf("crop round trip:\ngot  %+v\nwant %+v", got, crop)
	}

	gotPhoto, err := store.GetPhoto(ctx, photo.ID)
	if err != nil {
		t.Fatalf("get photo: %v", err)
	}
	if !reflect.DeepEqual(gotPhoto, photo) {
		t.Fatalf("photo round trip:\ngot  %+v\nwant %+v", gotPhoto, photo)
	}
}

func TestStoreFieldRequiresFarm(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	field := &Field{
		ID:        "orphan",
		FarmID:    "no-such-farm",
		Name:      "orphan",
		CreatedAt: time.Unix(1700000100, 0).UTC(),
	}
	err := store.SaveField(ctx, field)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error for orphaned field, got %v", err)
	}
}

func TestSyncQueueFIFO(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ops := []struct {
		op Operation
		id string
	}{
		{OpCreate, "r1"},
		{OpUpdate, "r1"},
		{OpCreate, "r2"},
		{OpDelete, "r1"},
	}
	for _, o := range ops {
		if err := store.AddToSyncQueue(ctx, o.op, ResourceFarms, o.id, nil); err != nil {
			t.Fatalf("enqueue %s %s: %v", o.op, o.id, err)
		}
	}

	entries, err := store.SyncQueue(ctx)
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	if len(entries) != len(ops) {
		t.Fatalf("expected %d entries, got %d", len(ops), len(entries))
	}
	for i, e := range entries {
		if e.Operation != ops[i].op || e.RecordID != ops[i].id {
			t.Fatalf("entry %d = %s %s, want %s %s", i, e.Operation, e.RecordID, ops[i].op, ops[i].id)
		}
		if e.Attempts != 0 {
			t.Fatalf("entry %d attempts = %d, want 0", i, e.Attempts)
		}
	}

	// Removal in the middle keeps the remaining order intact.
	if err := store.RemoveSyncQueueItem(ctx, entries[1].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.AddToSyncQueue(ctx, OpUpdate, ResourceFarms, "r3", nil); err != nil {
		t.Fatalf("enqueue r3: %v", err)
	}
	entries, err = store.SyncQueue(ctx)
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	want := []string{"r1", "r2", "r1", "r3"}
	for i, e := range entries {
		if e.RecordID != want[i] {
			t.Fatalf("after removal, entry %d = %s, want %s", i, e.RecordID, want[i])
		}
	}
}

func TestSyncQueuePayloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	last := time.Unix(1700000500, 0).UTC()
	farm := testFarm("farm-1")
	farm.LastSync = &last

	if err := store.AddToSyncQueue(ctx, OpCreate, ResourceFarms, farm.ID, farm); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	entries, err := store.SyncQueue(ctx)
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	p, err := entries[0].Payload()
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	decoded, ok := p.(*Farm)
	if !ok {
		t.Fatalf("payload type = %T, want *Farm", p)
	}
	if !reflect.DeepEqual(decoded, farm) {
		t.Fatalf("payload round trip:\ngot  %+v\nwant %+v", decoded, farm)
	}
}

func TestRemoveSyncQueueItemIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.RemoveSyncQueueItem(ctx, 12345); err != nil {
		t.Fatalf("remove absent entry: %v", err)
	}
}

func TestMarkSyncedClearsFlag(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	farm := testFarm("farm-1")
	if err := store.SaveFarm(ctx, farm); err != nil {
		t.Fatalf("save: %v", err)
	}
	at := time.Unix(1700001000, 0).UTC()
	if err := store.MarkSynced(ctx, ResourceFarms, farm.ID, at); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	got, err := store.GetFarm(ctx, farm.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.NeedsSync {
		t.Fatal("needs_sync still set after MarkSynced")
	}
	if got.LastSync == nil || !got.LastSync.Equal(at) {
		t.Fatalf("last_sync = %v, want %v", got.LastSync, at)
	}
}

func TestIncrementAttempts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.AddToSyncQueue(ctx, OpCreate, ResourceFarms, "r1", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	entries, _ := store.SyncQueue(ctx)
	if err := store.IncrementAttempts(ctx, entries[0].ID); err != nil {
		t.Fatalf("increment: %v", err)
	}
	entries, _ = store.SyncQueue(ctx)
	if entries[0].Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", entries[0].Attempts)
	}

	count, err := store.PendingCount(ctx)
	if err != nil || count != 1 {
		t.Fatalf("pending count = %d (%v), want 1", count, err)
	}
}
