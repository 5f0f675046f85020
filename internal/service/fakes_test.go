package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dooropener/dooropener/internal/blob"
	"github.com/dooropener/dooropener/internal/cache"
	"github.com/dooropener/dooropener/internal/model"
	"github.com/dooropener/dooropener/internal/repository"
)

var errUnreachable = errors.New("connection refused")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUsers is an in-memory UserStore.
type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.Principal
	err    error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[int64]*model.Principal)}
}

func (f *fakeUsers) CreateUser(_ context.Context, user *model.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, u := range f.byID {
		if u.Username == user.Username {
			return repository.ErrUsernameExists
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now().UTC()
	stored := *user
	f.byID[user.ID] = &stored
	return nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id int64) (*model.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, username string) (*model.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// add stores a principal directly, bypassing hashing.
func (f *fakeUsers) add(username, email string) *model.Principal {
	p := &model.Principal{Username: username, Email: email}
	_ = f.CreateUser(context.Background(), p)
	return p
}

// fakeMedia is an in-memory MediaStore with serialized id allocation.
type fakeMedia struct {
	mu        sync.Mutex
	nextID    int64
	records   []*model.MediaRecord
	createErr error
	listErr   error
	countErr  error
	// onList runs before ListAllMedia reads, outside the lock.
	onList func()
}

func (f *fakeMedia) CreateMedia(_ context.Context, draft model.MediaDraft) (*model.MediaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if !draft.HasOwner() {
		return nil, repository.ErrMediaOwnerMissing
	}
	f.nextID++
	now := time.Now().UTC()
	r := &model.MediaRecord{
		ID:          f.nextID,
		OwnerID:     draft.OwnerID(),
		Email:       draft.Email,
		BlobLocator: draft.BlobLocator,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.records = append(f.records, r)
	copied := *r
	return &copied, nil
}

func (f *fakeMedia) ListMediaByOwner(_ context.Context, ownerID int64) ([]*model.MediaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*model.MediaRecord, 0)
	for _, r := range f.records {
		if r.OwnerID == ownerID {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeMedia) ListAllMedia(_ context.Context) ([]*model.MediaRecord, error) {
	if f.onList != nil {
		hook := f.onList
		f.onList = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*model.MediaRecord, 0, len(f.records))
	for _, r := range f.records {
		copied := *r
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeMedia) CountMedia(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.records)), nil
}

// fakeBlobs is an in-memory blob.Store.
type fakeBlobs struct {
	mu         sync.Mutex
	objects    map[string][]byte
	deleted    []string
	putErr     error
	resolveErr error
	deleteErr  error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (f *fakeBlobs) Put(_ context.Context, obj blob.Object) (blob.Locator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return "", err
	}
	f.objects[obj.Key] = data
	return blob.Locator(obj.Key), nil
}

func (f *fakeBlobs) Resolve(_ context.Context, loc blob.Locator) (string, error) {
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return "http://localhost:8080/media/" + string(loc), nil
}

func (f *fakeBlobs) Delete(_ context.Context, loc blob.Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, string(loc))
	f.deleted = append(f.deleted, string(loc))
	return nil
}

func (f *fakeBlobs) Ping(context.Context) error { return nil }

func (f *fakeBlobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// fakeSessions is an in-memory SessionStore.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	err      error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*model.Session)}
}

func (f *fakeSessions) SetSession(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	copied := *s
	f.sessions[s.ID] = &copied
	return nil
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessions) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.sessions, id)
	return nil
}

// fakeFeedCache is an in-memory FeedCache with SET NX semantics.
type fakeFeedCache struct {
	mu        sync.Mutex
	snapshots map[int64][]model.FeedItem
	getErr    error
}

func (f *fakeFeedCache) GetFeed(_ context.Context, version int64) ([]model.FeedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	items, ok := f.snapshots[version]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return append([]model.FeedItem(nil), items...), nil
}

func (f *fakeFeedCache) SetFeed(_ context.Context, version int64, items []model.FeedItem, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshots == nil {
		f.snapshots = make(map[int64][]model.FeedItem)
	}
	if _, ok := f.snapshots[version]; !ok {
		f.snapshots[version] = append([]model.FeedItem(nil), items...)
	}
	return nil
}

func (f *fakeFeedCache) stored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

// fakeDeviceKeys is an in-memory DeviceKeyStore.
type fakeDeviceKeys struct {
	mu   sync.Mutex
	keys map[string]*model.DeviceKey
}

func newFakeDeviceKeys() *fakeDeviceKeys {
	return &fakeDeviceKeys{keys: make(map[string]*model.DeviceKey)}
}

func (f *fakeDeviceKeys) CreateDeviceKey(_ context.Context, key *model.DeviceKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *key
	f.keys[key.ID] = &copied
	return nil
}

func (f *fakeDeviceKeys) GetDeviceKeyByID(_ context.Context, id string) (*model.DeviceKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[id]
	if !ok {
		return nil, repository.ErrDeviceKeyNotFound
	}
	copied := *k
	return &copied, nil
}

func (f *fakeDeviceKeys) ListDeviceKeysByUserID(_ context.Context, userID int64) ([]*model.DeviceKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.DeviceKey
	for _, k := range f.keys {
		if k.PrincipalID == userID {
			copied := *k
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeDeviceKeys) RevokeDeviceKey(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[id]
	if !ok || k.RevokedAt != nil {
		return repository.ErrDeviceKeyNotFound
	}
	now := time.Now()
	k.RevokedAt = &now
	return nil
}

// fakeAuthCache records device auth invalidations.
type fakeAuthCache struct {
	mu      sync.Mutex
	dropped []string
}

func (f *fakeAuthCache) DeleteDeviceAuthByKeyID(_ context.Context, keyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, keyID)
	return nil
}

// Image fixtures

func tinyImage() image.Image {
	img := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
	img.Set(1, 1, color.White)
	return img
}

func pngBytes(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, tinyImage()); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, tinyImage(), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func gifBytes(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gif.Encode(&buf, tinyImage(), nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	return buf.Bytes()
}
