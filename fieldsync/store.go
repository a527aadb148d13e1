package fieldsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists mirrored entity records and the sync queue locally.
// NewStore does not touch the filesystem; Initialize must be called before
// any other method.
type Store struct {
	path string
	db   *sql.DB
}

// NewStore builds an unopened store for the given database file.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Initialize opens/creates the SQLite database and runs migrations.
// It is idempotent; calling it on an open store is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite", s.path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return storageErr("open", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return storageErr("migrate", err)
	}
	s.db = db
	return nil
}

// Close releases the underlying database handle. Subsequent operations fail
// with ErrNotInitialized.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return storageErr("close", err)
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  name TEXT NOT NULL,
  role TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  last_sync INTEGER
);

CREATE TABLE IF NOT EXISTS farms (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  owner_id TEXT NOT NULL,
  latitude REAL NOT NULL DEFAULT 0,
  longitude REAL NOT NULL DEFAULT 0,
  address TEXT NOT NULL DEFAULT '',
  region TEXT NOT NULL DEFAULT '',
  country TEXT NOT NULL DEFAULT '',
  total_area REAL NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  last_sync INTEGER,
  needs_sync INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS fields (
  id TEXT PRIMARY KEY,
  farm_id TEXT NOT NULL REFERENCES farms(id),
  name TEXT NOT NULL,
  area REAL NOT NULL DEFAULT 0,
  soil_type TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  last_sync INTEGER,
  needs_sync INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS crops (
  id TEXT PRIMARY KEY,
  field_id TEXT NOT NULL REFERENCES fields(id),
  crop_type TEXT NOT NULL,
  variety TEXT NOT NULL DEFAULT '',
  planting_date INTEGER NOT NULL,
  expected_harvest_date INTEGER NOT NULL,
  actual_harvest_date INTEGER,
  status TEXT NOT NULL,
  yield REAL NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  last_sync INTEGER,
  needs_sync INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS photos (
  id TEXT PRIMARY KEY,
  farm_id TEXT REFERENCES farms(id),
  field_id TEXT REFERENCES fields(id),
  crop_id TEXT REFERENCES crops(id),
  uri TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  latitude REAL NOT NULL DEFAULT 0,
  longitude REAL NOT NULL DEFAULT 0,
  taken_at INTEGER NOT NULL,
  uploaded INTEGER NOT NULL DEFAULT 0,
  needs_sync INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sync_queue (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  operation TEXT NOT NULL,
  table_name TEXT NOT NULL,
  record_id TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0
);
`)
	return err
}

func (s *Store) ready() error {
	if s.db == nil {
		return ErrNotInitialized
	}
	return nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nullStr(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// SaveUser upserts the local user row.
func (s *Store) SaveUser(ctx context.Context, u *User) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO users(id, email, name, role, created_at, last_sync)
VALUES(?,?,?,?,?,?)`,
		u.ID, u.Email, u.Name, u.Role, u.CreatedAt.Unix(), nullTime(u.LastSync))
	return storageErr("save user", err)
}

// GetUser returns the user by id, or nil when absent.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	u := &User{}
	var created int64
	var lastSync sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT id, email, name, role, created_at, last_sync FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.Role, &created, &lastSync)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	u.LastSync = timeFromNull(lastSync)
	return u, nil
}

// CurrentUser returns the single locally cached user, or nil when logged out.
func (s *Store) CurrentUser(ctx context.Context) (*User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("current user", err)
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes the cached user row.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return storageErr("delete user", err)
}

// SaveFarm upserts a farm by primary key.
func (s *Store) SaveFarm(ctx context.Context, f *Farm) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO farms(id, name, owner_id, latitude, longitude, address, region, country, total_area, created_at, last_sync, needs_sync)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		f.ID, f.Name, f.OwnerID, f.Latitude, f.Longitude, f.Address, f.Region, f.Country,
		f.TotalArea, f.CreatedAt.Unix(), nullTime(f.LastSync), f.NeedsSync)
	return storageErr("save farm", err)
}

// GetFarm returns the farm by id, or nil when absent.
func (s *Store) GetFarm(ctx context.Context, id string) (*Farm, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	f := &Farm{}
	var created int64
	var lastSync sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, owner_id, latitude, longitude, address, region, country, total_area, created_at, last_sync, needs_sync
FROM farms WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.OwnerID, &f.Latitude, &f.Longitude, &f.Address, &f.Region,
			&f.Country, &f.TotalArea, &created, &lastSync, &f.NeedsSync)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get farm", err)
	}
	f.CreatedAt = time.Unix(created, 0).UTC()
	f.LastSync = timeFromNull(lastSync)
	return f, nil
}

// ListFarms returns farms, optionally filtered by owner. Empty slice when none.
func (s *Store) ListFarms(ctx context.Context, ownerID string) ([]*Farm, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	q := `
SELECT id, name, owner_id, latitude, longitude, address, region, country, total_area, created_at, last_sync, needs_sync
FROM farms`
	args := []any{}
	if ownerID != "" {
		q += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	q += ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("list farms", err)
	}
	defer func() { _ = rows.Close() }()

	farms := []*Farm{}
	for rows.Next() {
		f := &Farm{}
		var created int64
		var lastSync sql.NullInt64
		if err := rows.Scan(&f.ID, &f.Name, &f.OwnerID, &f.Latitude, &f.Longitude, &f.Address,
			&f.Region, &f.Country, &f.TotalArea, &created, &lastSync, &f.NeedsSync); err != nil {
			return nil, storageErr("list farms", err)
		}
		f.CreatedAt = time.Unix(created, 0).UTC()
		f.LastSync = timeFromNull(lastSync)
		farms = append(farms, f)
	}
	return farms, storageErr("list farms", rows.Err())
}

// DeleteFarm removes a farm by id; idempotent.
func (s *Store) DeleteFarm(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM farms WHERE id = ?`, id)
	return storageErr("delete farm", err)
}

// SaveField upserts a field by primary key.
func (s *Store) SaveField(ctx context.Context, f *Field) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO fields(id, farm_id, name, area, soil_type, created_at, last_sync, needs_sync)
VALUES(?,?,?,?,?,?,?,?)`,
		f.ID, f.FarmID, f.Name, f.Area, f.SoilType, f.CreatedAt.Unix(), nullTime(f.LastSync), f.NeedsSync)
	return storageErr("save field", err)
}

// GetField returns the field by id, or nil when absent.
func (s *Store) GetField(ctx context.Context, id string) (*Field, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	f := &Field{}
	var created int64
	var lastSync sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT id, farm_id, name, area, soil_type, created_at, last_sync, needs_sync FROM fields WHERE id = ?`, id).
		Scan(&f.ID, &f.FarmID, &f.Name, &f.Area, &f.SoilType, &created, &lastSync, &f.NeedsSync)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get field", err)
	}
	f.CreatedAt = time.Unix(created, 0).UTC()
	f.LastSync = timeFromNull(lastSync)
	return f, nil
}

// ListFields returns the fields of a farm, empty slice when none.
func (s *Store) ListFields(ctx context.Context, farmID string) ([]*Field, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, farm_id, name, area, soil_type, created_at, last_sync, needs_sync
FROM fields WHERE farm_id = ? ORDER BY created_at ASC`, farmID)
	if err != nil {
		return nil, storageErr("list fields", err)
	}
	defer func() { _ = rows.Close() }()

	fields := []*Field{}
	for rows.Next() {
		f := &Field{}
		var created int64
		var lastSync sql.NullInt64
		if err := rows.Scan(&f.ID, &f.FarmID, &f.Name, &f.Area, &f.SoilType, &created, &lastSync, &f.NeedsSync); err != nil {
			return nil, storageErr("list fields", err)
		}
		f.CreatedAt = time.Unix(created, 0).UTC()
		f.LastSync = timeFromNull(lastSync)
		fields = append(fields, f)
	}
	return fields, storageErr("list fields", rows.Err())
}

// DeleteField removes a field by id; idempotent.
func (s *Store) DeleteField(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM fields WHERE id = ?`, id)
	return storageErr("delete field", err)
}

// SaveCrop upserts a crop by primary key.
func (s *Store) SaveCrop(ctx context.Context, c *Crop) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO crops(id, field_id, crop_type, variety, planting_date, expected_harvest_date, actual_harvest_date, status, yield, created_at, last_sync, needs_sync)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.FieldID, c.CropType, c.Variety, c.PlantingDate.Unix(), c.ExpectedHarvestDate.Unix(),
		nullTime(c.ActualHarvestDate), string(c.Status), c.Yield, c.CreatedAt.Unix(),
		nullTime(c.LastSync), c.NeedsSync)
	return storageErr("save crop", err)
}

// GetCrop returns the crop by id, or nil when absent.
func (s *Store) GetCrop(ctx context.Context, id string) (*Crop, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	c := &Crop{}
	var planting, expected, created int64
	var actual, lastSync sql.NullInt64
	var status string
	err := s.db.QueryRowContext(ctx, `
SELECT id, field_id, crop_type, variety, planting_date, expected_harvest_date, actual_harvest_date, status, yield, created_at, last_sync, needs_sync
FROM crops WHERE id = ?`, id).
		Scan(&c.ID, &c.FieldID, &c.CropType, &c.Variety, &planting, &expected, &actual,
			&status, &c.Yield, &created, &lastSync, &c.NeedsSync)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get crop", err)
	}
	c.PlantingDate = time.Unix(planting, 0).UTC()
	c.ExpectedHarvestDate = time.Unix(expected, 0).UTC()
	c.ActualHarvestDate = timeFromNull(actual)
	c.Status = CropStatus(status)
	c.CreatedAt = time.Unix(created, 0).UTC()
	c.LastSync = timeFromNull(lastSync)
	return c, nil
}

// ListCrops returns the crops of a field, empty slice when none.
func (s *Store) ListCrops(ctx context.Context, fieldID string) ([]*Crop, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, field_id, crop_type, variety, planting_date, expected_harvest_date, actual_harvest_date, status, yield, created_at, last_sync, needs_sync
FROM crops WHERE field_id = ? ORDER BY created_at ASC`, fieldID)
	if err != nil {
		return nil, storageErr("list crops", err)
	}
	defer func() { _ = rows.Close() }()

	crops := []*Crop{}
	for rows.Next() {
		c := &Crop{}
		var planting, expected, created int64
		var actual, lastSync sql.NullInt64
		var status string
		if err := rows.Scan(&c.ID, &c.FieldID, &c.CropType, &c.Variety, &planting, &expected,
			&actual, &status, &c.Yield, &created, &lastSync, &c.NeedsSync); err != nil {
			return nil, storageErr("list crops", err)
		}
		c.PlantingDate = time.Unix(planting, 0).UTC()
		c.ExpectedHarvestDate = time.Unix(expected, 0).UTC()
		c.ActualHarvestDate = timeFromNull(actual)
		c.Status = CropStatus(status)
		c.CreatedAt = time.Unix(created, 0).UTC()
		c.LastSync = timeFromNull(lastSync)
		crops = append(crops, c)
	}
	return crops, storageErr("list crops", rows.Err())
}

// DeleteCrop removes a crop by id; idempotent.
func (s *Store) DeleteCrop(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM crops WHERE id = ?`, id)
	return storageErr("delete crop", err)
}

// SavePhoto upserts a photo by primary key. Empty association ids are stored
// as NULL so the foreign keys only bind when an association is present.
func (s *Store) SavePhoto(ctx context.Context, p *Photo) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO photos(id, farm_id, field_id, crop_id, uri, description, latitude, longitude, taken_at, uploaded, needs_sync)
VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, nullStr(p.FarmID), nullStr(p.FieldID), nullStr(p.CropID), p.URI, p.Description,
		p.Latitude, p.Longitude, p.TakenAt.Unix(), p.Uploaded, p.NeedsSync)
	return storageErr("save photo", err)
}

// GetPhoto returns the photo by id, or nil when absent.
func (s *Store) GetPhoto(ctx context.Context, id string) (*Photo, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	p := &Photo{}
	var farmID, fieldID, cropID sql.NullString
	var takenAt int64
	err := s.db.QueryRowContext(ctx, `
SELECT id, farm_id, field_id, crop_id, uri, description, latitude, longitude, taken_at, uploaded, needs_sync
FROM photos WHERE id = ?`, id).
		Scan(&p.ID, &farmID, &fieldID, &cropID, &p.URI, &p.Description, &p.Latitude,
			&p.Longitude, &takenAt, &p.Uploaded, &p.NeedsSync)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get photo", err)
	}
	p.FarmID, p.FieldID, p.CropID = farmID.String, fieldID.String, cropID.String
	p.TakenAt = time.Unix(takenAt, 0).UTC()
	return p, nil
}

// ListPhotos returns all photos, empty slice when none.
func (s *Store) ListPhotos(ctx context.Context) ([]*Photo, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, farm_id, field_id, crop_id, uri, description, latitude, longitude, taken_at, uploaded, needs_sync
FROM photos ORDER BY taken_at ASC`)
	if err != nil {
		return nil, storageErr("list photos", err)
	}
	defer func() { _ = rows.Close() }()

	photos := []*Photo{}
	for rows.Next() {
		p := &Photo{}
		var farmID, fieldID, cropID sql.NullString
		var takenAt int64
		if err := rows.Scan(&p.ID, &farmID, &fieldID, &cropID, &p.URI, &p.Description,
			&p.Latitude, &p.Longitude, &takenAt, &p.Uploaded, &p.NeedsSync); err != nil {
			return nil, storageErr("list photos", err)
		}
		p.FarmID, p.FieldID, p.CropID = farmID.String, fieldID.String, cropID.String
		p.TakenAt = time.Unix(takenAt, 0).UTC()
		photos = append(photos, p)
	}
	return photos, storageErr("list photos", rows.Err())
}

// DeletePhoto removes a photo by id; idempotent.
func (s *Store) DeletePhoto(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id)
	return storageErr("delete photo", err)
}

// MarkSynced clears a record's needs_sync flag and stamps last_sync after a
// confirmed upload or a confirming download.
func (s *Store) MarkSynced(ctx context.Context, r Resource, id string, at time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	if !r.Valid() {
		return ErrUnknownResource
	}
	var err error
	switch r {
	case ResourcePhotos:
		_, err = s.db.ExecContext(ctx, `UPDATE photos SET needs_sync = 0 WHERE id = ?`, id)
	default:
		_, err = s.db.ExecContext(ctx,
			`UPDATE `+string(r)+` SET needs_sync = 0, last_sync = ? WHERE id = ?`, at.Unix(), id)
	}
	return storageErr("mark synced", err)
}

// AddToSyncQueue appends a pending mutation with attempts = 0. The payload
// round-trips losslessly through the data column.
func (s *Store) AddToSyncQueue(ctx context.Context, op Operation, r Resource, recordID string, p Payload) error {
	if err := s.ready(); err != nil {
		return err
	}
	raw, err := encodePayload(p)
	if err != nil {
		return err
	}
	data := "null"
	if raw != nil {
		data = string(raw)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO sync_queue(operation, table_name, record_id, data, created_at, attempts)
VALUES(?,?,?,?,?,0)`,
		string(op), string(r), recordID, data, time.Now().UTC().Unix())
	return storageErr("enqueue", err)
}

// SyncQueue returns all queue entries in FIFO order. The ordering guarantees
// operations against the same record replay in the order they were made.
func (s *Store) SyncQueue(ctx context.Context) ([]QueueEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, operation, table_name, record_id, data, created_at, attempts
FROM sync_queue ORDER BY id ASC`)
	if err != nil {
		return nil, storageErr("read queue", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []QueueEntry
	for rows.Next() {
		var e QueueEntry
		var op, table, data string
		var created int64
		if err := rows.Scan(&e.ID, &op, &table, &e.RecordID, &data, &created, &e.Attempts); err != nil {
			return nil, storageErr("read queue", err)
		}
		e.Operation = Operation(op)
		e.Resource = Resource(table)
		e.Data = json.RawMessage(data)
		e.CreatedAt = time.Unix(created, 0).UTC()
		entries = append(entries, e)
	}
	return entries, storageErr("read queue", rows.Err())
}

// RemoveSyncQueueItem deletes a queue entry by id; idempotent.
func (s *Store) RemoveSyncQueueItem(ctx context.Context, id int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	return storageErr("remove queue item", err)
}

// IncrementAttempts bumps the attempt counter of a queue entry.
func (s *Store) IncrementAttempts(ctx context.Context, id int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE sync_queue SET attempts = attempts + 1 WHERE id = ?`, id)
	return storageErr("increment attempts", err)
}

// PendingCount returns the number of queued mutations waiting for upload.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&count)
	return count, storageErr("pending count", err)
}
