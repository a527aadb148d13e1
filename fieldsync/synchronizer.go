// ABOUTME: Synchronizer coordinates upload-then-download sync passes.
// ABOUTME: Single-flight guarded; periodic ticks and reconnect edges share one entry point.
package fieldsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// fieldFetchParallelism bounds concurrent per-farm field fetches during the
// download phase. Farms are always reconciled before any of their fields.
const fieldFetchParallelism = 4

// Synchronizer drains the durable sync queue against the remote API and
// reconciles downloaded server state into the local store. Server state
// always wins during download reconciliation (ServerWinsOnDownload): a full
// record replace, no field-level merge.
type Synchronizer struct {
	cfg     Config
	store   *Store
	gw      *Gateway
	monitor *Monitor
	log     *zap.Logger

	syncing   atomic.Bool
	errs      *errorLog
	downloads *downloadQueue

	mu       sync.Mutex
	lastSync *time.Time

	stop chan struct{}
	done chan struct{}
}

// SyncStatus is the in-memory status surface the UI polls.
type SyncStatus struct {
	IsOnline         bool        `json:"isOnline"`
	IsSyncing        bool        `json:"isSyncing"`
	LastSync         *time.Time  `json:"lastSync,omitempty"`
	PendingUploads   int         `json:"pendingUploads"`
	PendingDownloads int         `json:"pendingDownloads"`
	Errors           []SyncError `json:"errors"`
}

// NewSynchronizer wires the store, gateway and monitor together and
// subscribes to the monitor's reconnect edge. A nil logger is replaced with
// a no-op one.
func NewSynchronizer(cfg Config, store *Store, gw *Gateway, monitor *Monitor, log *zap.Logger) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Synchronizer{
		cfg:       cfg.withDefaults(),
		store:     store,
		gw:        gw,
		monitor:   monitor,
		log:       log,
		errs:      newErrorLog(),
		downloads: newDownloadQueue(),
	}
	monitor.OnReconnect(func() {
		s.log.Info("reconnect detected, triggering sync")
		s.SyncAll(context.Background())
	})
	return s
}

// Start runs the periodic sync ticker until Stop is called or ctx is done.
func (s *Synchronizer) Start(ctx context.Context) {
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.SyncAll(ctx)
			}
		}
	}()
}

// Stop halts the periodic ticker. A pass already in flight runs to completion.
func (s *Synchronizer) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

// SyncAll runs one full sync pass: upload phase, download phase, then the
// targeted download queue. It returns false immediately when offline or when
// a pass is already in flight (the trigger is dropped, not queued), and false
// when either phase aborts. The synchronizer always returns to idle.
func (s *Synchronizer) SyncAll(ctx context.Context) bool {
	if !s.monitor.Online() {
		return false
	}
	if !s.syncing.CompareAndSwap(false, true) {
		return false
	}
	defer s.syncing.Store(false)

	started := time.Now()
	if err := s.uploadPhase(ctx); err != nil {
		s.log.Error("upload phase aborted", zap.Error(err))
		s.recordFailure("upload phase aborted", err)
		return false
	}
	if err := s.downloadPhase(ctx); err != nil {
		s.log.Error("download phase aborted", zap.Error(err))
		s.recordFailure("download phase aborted", err)
		return false
	}
	s.processDownloadQueue(ctx)

	now := time.Now().UTC()
	s.mu.Lock()
	s.lastSync = &now
	s.mu.Unlock()
	s.log.Info("sync pass complete", zap.Duration("took", time.Since(started)))
	return true
}

// uploadPhase drains a FIFO snapshot of the sync queue, strictly
// sequentially: later entries may depend on earlier ones (an UPDATE after a
// CREATE of the same record). Per-entry failures never abort the phase; only
// local storage faults do.
func (s *Synchronizer) uploadPhase(ctx context.Context) error {
	entries, err := s.store.SyncQueue(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.Resource.Valid() {
			// A queue entry referencing an unmapped table is a local bug,
			// never retried.
			s.log.Error("unknown resource in sync queue",
				zap.String("table", string(e.Resource)), zap.Int64("entry", e.ID))
			s.errs.push(ValidationError,
				fmt.Sprintf("unknown resource %q", e.Resource),
				fmt.Sprintf("queue entry %d dropped", e.ID))
			if err := s.store.RemoveSyncQueueItem(ctx, e.ID); err != nil {
				return err
			}
			continue
		}

		if err := s.applyEntry(ctx, e); err != nil {
			attempts := e.Attempts + 1
			if attempts >= s.cfg.MaxAttempts {
				// Bounded retry: past the budget the change is dropped.
				if rerr := s.store.RemoveSyncQueueItem(ctx, e.ID); rerr != nil {
					return rerr
				}
				s.errs.push(NetworkError,
					fmt.Sprintf("%s %s/%s dropped after %d attempts", e.Operation, e.Resource, e.RecordID, attempts),
					err.Error())
				s.log.Warn("queue entry dropped after max attempts",
					zap.Int64("entry", e.ID), zap.String("record", e.RecordID), zap.Error(err))
			} else if ierr := s.store.IncrementAttempts(ctx, e.ID); ierr != nil {
				return ierr
			}
			// Under the budget the entry stays for the next pass; no retry
			// within the same pass.
			continue
		}

		if err := s.store.RemoveSyncQueueItem(ctx, e.ID); err != nil {
			return err
		}
		if e.Operation != OpDelete {
			if err := s.store.MarkSynced(ctx, e.Resource, e.RecordID, time.Now().UTC()); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyEntry dispatches one queue entry to the remote API.
func (s *Synchronizer) applyEntry(ctx context.Context, e QueueEntry) error {
	var resp *http.Response
	var err error
	switch e.Operation {
	case OpCreate:
		resp, err = s.gw.DoJSON(ctx, http.MethodPost, e.Resource.Path(), e.Data)
	case OpUpdate:
		resp, err = s.gw.DoJSON(ctx, http.MethodPut, path.Join(e.Resource.Path(), e.RecordID), e.Data)
	case OpDelete:
		resp, err = s.gw.Do(ctx, http.MethodDelete, path.Join(e.Resource.Path(), e.RecordID), nil, nil)
	default:
		return fmt.Errorf("unknown operation %q", e.Operation)
	}
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OpError{Op: "upload", Err: ErrServerError, Attempts: e.Attempts + 1, Detail: resp.Status}
	}
	return nil
}

// downloadPhase pulls canonical server state: the user's farms first, then
// each farm's fields, then all photos. Downloaded records replace local
// state with needs_sync cleared and last_sync stamped.
func (s *Synchronizer) downloadPhase(ctx context.Context) error {
	now := time.Now().UTC()

	farms, err := fetchList[Farm](ctx, s.gw, "/api/farms")
	if err != nil {
		return err
	}
	for _, f := range farms {
		f.LastSync = &now
		f.NeedsSync = false
		if err := s.store.SaveFarm(ctx, f); err != nil {
			return err
		}
	}

	// Per-farm field fetches may run in parallel; every farm row is already
	// reconciled above, so farms still land before their fields.
	fieldsByFarm := make([][]*Field, len(farms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fieldFetchParallelism)
	for i, f := range farms {
		i, f := i, f
		g.Go(func() error {
			fields, err := fetchList[Field](gctx, s.gw, "/api/farms/"+f.ID+"/fields")
			if err != nil {
				return err
			}
			fieldsByFarm[i] = fields
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, fields := range fieldsByFarm {
		for _, f := range fields {
			f.LastSync = &now
			f.NeedsSync = false
			if err := s.store.SaveField(ctx, f); err != nil {
				return err
			}
		}
	}

	photos, err := fetchList[Photo](ctx, s.gw, "/api/photos")
	if err != nil {
		return err
	}
	for _, p := range photos {
		p.NeedsSync = false
		if err := s.store.SavePhoto(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func fetchList[T any](ctx context.Context, gw *Gateway, p string) ([]*T, error) {
	resp, err := gw.Do(ctx, http.MethodGet, p, nil, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %w: %s", p, ErrServerError, resp.Status)
	}
	var out []*T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// QueueCreate appends a CREATE mutation to the durable sync queue. Called by
// UI-facing mutation paths after the local write.
func (s *Synchronizer) QueueCreate(ctx context.Context, r Resource, recordID string, p Payload) error {
	if !r.Valid() {
		return ErrUnknownResource
	}
	return s.store.AddToSyncQueue(ctx, OpCreate, r, recordID, p)
}

// QueueUpdate appends an UPDATE mutation to the durable sync queue.
func (s *Synchronizer) QueueUpdate(ctx context.Context, r Resource, recordID string, p Payload) error {
	if !r.Valid() {
		return ErrUnknownResource
	}
	return s.store.AddToSyncQueue(ctx, OpUpdate, r, recordID, p)
}

// QueueDelete appends a DELETE mutation to the durable sync queue.
func (s *Synchronizer) QueueDelete(ctx context.Context, r Resource, recordID string) error {
	if !r.Valid() {
		return ErrUnknownResource
	}
	return s.store.AddToSyncQueue(ctx, OpDelete, r, recordID, nil)
}

// ForceSyncFarm re-queues a farm as an UPDATE when it has diverged locally,
// then triggers a full sync pass.
func (s *Synchronizer) ForceSyncFarm(ctx context.Context, farmID string) error {
	user, err := s.store.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("force sync farm: %w", ErrNoToken)
	}
	farm, err := s.store.GetFarm(ctx, farmID)
	if err != nil {
		return err
	}
	if farm == nil {
		return fmt.Errorf("force sync farm: farm %s not found", farmID)
	}
	if farm.NeedsSync {
		if err := s.QueueUpdate(ctx, ResourceFarms, farm.ID, farm); err != nil {
			return err
		}
	}
	s.SyncAll(ctx)
	return nil
}

// UploadPhotoFile posts the photo binary plus metadata as multipart form
// data. Offline it returns immediately without queueing a retry; the durable
// queue deliberately excludes binary uploads. On success the local photo is
// marked uploaded.
func (s *Synchronizer) UploadPhotoFile(ctx context.Context, photo *Photo, file io.Reader) (bool, error) {
	if !s.monitor.Online() {
		return false, nil
	}

	fields := map[string]string{
		"photoId":     photo.ID,
		"description": photo.Description,
		"latitude":    fmt.Sprintf("%g", photo.Latitude),
		"longitude":   fmt.Sprintf("%g", photo.Longitude),
		"takenAt":     photo.TakenAt.UTC().Format(time.RFC3339),
	}
	if photo.FarmID != "" {
		fields["farmId"] = photo.FarmID
	}
	if photo.FieldID != "" {
		fields["fieldId"] = photo.FieldID
	}
	if photo.CropID != "" {
		fields["cropId"] = photo.CropID
	}

	resp, err := s.gw.DoMultipart(ctx, "/api/photos/upload", fields, "file", path.Base(photo.URI), file)
	if err != nil {
		s.errs.push(NetworkError, "photo upload failed", err.Error())
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.errs.push(ServerError, "photo upload rejected", resp.Status)
		return false, fmt.Errorf("photo upload: %w: %s", ErrServerError, resp.Status)
	}

	photo.Uploaded = true
	photo.NeedsSync = false
	if err := s.store.SavePhoto(ctx, photo); err != nil {
		return false, err
	}
	return true, nil
}

// AddToDownloadQueue registers a targeted download, deduplicated by
// (resource, record). Higher priority drains first.
func (s *Synchronizer) AddToDownloadQueue(r Resource, recordID string, priority int) error {
	if !r.Valid() {
		return ErrUnknownResource
	}
	s.downloads.add(r, recordID, priority)
	return nil
}

// processDownloadQueue drains targeted downloads sequentially while online.
// Failed items are re-enqueued up to the shared attempt budget, then dropped
// and logged.
func (s *Synchronizer) processDownloadQueue(ctx context.Context) {
	for s.monitor.Online() {
		it, ok := s.downloads.pop()
		if !ok {
			return
		}
		if err := s.downloadOne(ctx, it); err != nil {
			if it.Attempts+1 >= s.cfg.MaxAttempts {
				s.errs.push(NetworkError,
					fmt.Sprintf("download %s/%s dropped after %d attempts", it.Resource, it.RecordID, it.Attempts+1),
					err.Error())
				s.log.Warn("download dropped after max attempts",
					zap.String("resource", string(it.Resource)), zap.String("record", it.RecordID), zap.Error(err))
				continue
			}
			s.downloads.requeue(it)
		}
	}
}

func (s *Synchronizer) downloadOne(ctx context.Context, it DownloadItem) error {
	resp, err := s.gw.Do(ctx, http.MethodGet, path.Join(it.Resource.Path(), it.RecordID), nil, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s/%s: %w: %s", it.Resource, it.RecordID, ErrServerError, resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	p, err := decodePayload(it.Resource, raw)
	if err != nil {
		return err
	}
	return s.saveRemote(ctx, p)
}

// saveRemote reconciles one downloaded record, server state winning.
func (s *Synchronizer) saveRemote(ctx context.Context, p Payload) error {
	now := time.Now().UTC()
	switch v := p.(type) {
	case *Farm:
		v.LastSync = &now
		v.NeedsSync = false
		return s.store.SaveFarm(ctx, v)
	case *Field:
		v.LastSync = &now
		v.NeedsSync = false
		return s.store.SaveField(ctx, v)
	case *Crop:
		v.LastSync = &now
		v.NeedsSync = false
		return s.store.SaveCrop(ctx, v)
	case *Photo:
		v.NeedsSync = false
		return s.store.SavePhoto(ctx, v)
	default:
		return ErrUnknownResource
	}
}

// Status reports the current sync state for the UI.
func (s *Synchronizer) Status(ctx context.Context) SyncStatus {
	pending, err := s.store.PendingCount(ctx)
	if err != nil {
		pending = 0
	}
	s.mu.Lock()
	last := s.lastSync
	s.mu.Unlock()
	return SyncStatus{
		IsOnline:         s.monitor.Online(),
		IsSyncing:        s.syncing.Load(),
		LastSync:         last,
		PendingUploads:   pending,
		PendingDownloads: s.downloads.len(),
		Errors:           s.errs.snapshot(),
	}
}

// recordFailure classifies an aborted phase into the UI error taxonomy.
func (s *Synchronizer) recordFailure(msg string, err error) {
	switch {
	case errors.Is(err, ErrStorage):
		s.errs.push(StorageFault, msg, err.Error())
	case errors.Is(err, ErrServerError):
		s.errs.push(ServerError, msg, err.Error())
	default:
		s.errs.push(NetworkError, msg, err.Error())
	}
}
