package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"draw-relay/internal/blob"
	"draw-relay/internal/config"
	"draw-relay/internal/db"
	"draw-relay/internal/preview"
)

type fakeStore struct {
	mu        sync.Mutex
	images    map[string]db.Image
	histories []db.ImageHistory
	events    []string

	getErr     error
	createErr  error
	updateErr  error
	historyErr error
	deleteErr  error
	listErr    error

	calls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{images: make(map[string]db.Image)}
}

func (f *fakeStore) GetImage(ctx context.Context, id string) (*db.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	record, ok := f.images[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := record
	return &copied, nil
}

func (f *fakeStore) CreateImage(ctx context.Context, record *db.Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.createErr != nil {
		return f.createErr
	}
	f.images[record.ID] = *record
	return nil
}

func (f *fakeStore) UpdateImageRevision(ctx context.Context, id string, fromRevision int, assetID, deleteToken string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.updateErr != nil {
		return false, f.updateErr
	}
	record, ok := f.images[id]
	if !ok || record.RevisionCount != fromRevision {
		return false, nil
	}
	record.PreviewAssetID = assetID
	record.PreviewDeleteToken = deleteToken
	record.RevisionCount = fromRevision + 1
	record.CreatedAt = now
	f.images[id] = record
	return true, nil
}

func (f *fakeStore) AppendHistory(ctx context.Context, record *db.ImageHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.historyErr != nil {
		return f.historyErr
	}
	for _, existing := range f.histories {
		if existing.ImageID == record.ImageID && existing.Revision == record.Revision {
			return db.ErrDuplicateRevision
		}
	}
	f.histories = append(f.histories, *record)
	return nil
}

func (f *fakeStore) DeleteImageWithHistory(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.images, id)
	kept := f.histories[:0]
	for _, record := range f.histories {
		if record.ImageID != id {
			kept = append(kept, record)
		}
	}
	f.histories = kept
	return nil
}

func (f *fakeStore) ListRecent(ctx context.Context, offset, limit int) ([]db.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	records := make([]db.Image, 0, len(f.images))
	for _, record := range f.images {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if offset >= len(records) {
		return nil, nil
	}
	records = records[offset:]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (f *fakeStore) ListHistory(ctx context.Context, imageID string) ([]db.ImageHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var records []db.ImageHistory
	for _, record := range f.histories {
		if record.ImageID == imageID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Revision < records[j].Revision
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (f *fakeStore) RecordEvent(ctx context.Context, imageID, eventType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeStore) setRevisionCount(id string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record := f.images[id]
	record.RevisionCount = count
	f.images[id] = record
}

func (f *fakeStore) removeImage(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, id)
}

func (f *fakeStore) imageByID(id string) (db.Image, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.images[id]
	return record, ok
}

func (f *fakeStore) imageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.images)
}

func (f *fakeStore) historyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.histories)
}

// racingStore interposes on the guarded revision update so tests can
// mutate the row between the workflow's pre-read and the update, the way
// a concurrent submission would.
type racingStore struct {
	*fakeStore
	beforeUpdate func()
}

func (r *racingStore) UpdateImageRevision(ctx context.Context, id string, fromRevision int, assetID, deleteToken string, now time.Time) (bool, error) {
	if r.beforeUpdate != nil {
		r.beforeUpdate()
	}
	return r.fakeStore.UpdateImageRevision(ctx, id, fromRevision, assetID, deleteToken, now)
}

type fakeBlobs struct {
	mu        sync.Mutex
	data      map[string][]byte
	putErr    error
	getErr    error
	deleteErr error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: make(map[string][]byte)}
}

func (f *fakeBlobs) Put(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.data[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.data[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeBlobs) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.data, key)
	return nil
}

type fakeHost struct {
	mu        sync.Mutex
	uploads   int
	deletes   []string
	uploadErr error
	deleteErr error
}

func (f *fakeHost) Upload(ctx context.Context, imageBase64 string) (preview.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return preview.Asset{}, f.uploadErr
	}
	f.uploads++
	return preview.Asset{
		ID:          fmt.Sprintf("asset-%d", f.uploads),
		DeleteToken: fmt.Sprintf("delete-%d", f.uploads),
	}, nil
}

func (f *fakeHost) Delete(ctx context.Context, deleteToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, deleteToken)
	return nil
}

func (f *fakeHost) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

type testEnv struct {
	store *fakeStore
	blobs *fakeBlobs
	host  *fakeHost
	ts    *httptest.Server
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newFakeStore()
	blobs := newFakeBlobs()
	host := &fakeHost{}
	srv := New(store, blobs, host, config.Default())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{store: store, blobs: blobs, host: host, ts: ts}
}

func (e *testEnv) seedImage(t *testing.T, id string, revisionCount int, createdAt time.Time) {
	t.Helper()
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	e.store.images[id] = db.Image{
		ID:                 id,
		Author:             "seed",
		SubmitterAddress:   "127.0.0.1",
		PreviewAssetID:     "seed-asset",
		PreviewDeleteToken: "seed-delete",
		RevisionCount:      revisionCount,
		CreatedAt:          createdAt,
	}
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func validBin(payload ...int) []int {
	bin := []int{0x23, 0x52, 0xFF, 0xAC}
	if len(payload) == 0 {
		payload = []int{1, 2, 3}
	}
	return append(bin, payload...)
}

func submitBody(overrides map[string]any) map[string]any {
	body := map[string]any{
		"bin": validBin(),
		"_bs": "data:image/png;base64,aGVsbG8=",
	}
	for key, value := range overrides {
		body[key] = value
	}
	return body
}
