package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"daily-album-backend/internal/apperr"
	"daily-album-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanViewPartnerUpload(t *testing.T) {
	tests := []struct {
		name     string
		myUpload *models.Upload
		want     bool
	}{
		{
			name:     "no upload of my own keeps partner locked",
			myUpload: nil,
			want:     false,
		},
		{
			name:     "upload without image keeps partner locked",
			myUpload: &models.Upload{ID: "2025-06-01_alice", ImageURL: ""},
			want:     false,
		},
		{
			name:     "whitespace image url keeps partner locked",
			myUpload: &models.Upload{ID: "2025-06-01_alice", ImageURL: "   "},
			want:     false,
		},
		{
			name:     "own upload with image unlocks partner",
			myUpload: &models.Upload{ID: "2025-06-01_alice", ImageURL: "https://cdn.example.com/a.jpg"},
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanViewPartnerUpload(tt.myUpload))
		})
	}
}

// The unlock verdict depends only on the viewer's own upload: the partner
// having uploaded first changes nothing until the viewer uploads too.
func TestUnlockIsPerViewer(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	partnerUpload, err := models.NewUpload("alice_bob", "bob", "2025-06-01", "https://cdn.example.com/b.jpg", "k", "beach", now)
	assert.NoError(t, err)

	// Bob uploaded, Alice did not: Alice sees a locked partner photo,
	// Bob (with his own upload present) could see Alice's if she had one.
	var aliceOwn *models.Upload
	assert.False(t, CanViewPartnerUpload(aliceOwn))
	assert.True(t, CanViewPartnerUpload(partnerUpload))
}

// --- fakes ---

func uploadMapKey(convID, dateID, userID string) string {
	return convID + "|" + dateID + "|" + userID
}

type fakeUploadStore struct {
	records   map[string]*models.Upload
	listErrs  []error // consumed by ListByDay before it starts succeeding
	listCalls int
	upsertErr error
}

func newFakeUploadStore() *fakeUploadStore {
	return &fakeUploadStore{records: make(map[string]*models.Upload)}
}

func (f *fakeUploadStore) Upsert(_ context.Context, u *models.Upload) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	cp := *u
	f.records[uploadMapKey(u.ConversationID, u.DateID, u.UserID)] = &cp
	return nil
}

func (f *fakeUploadStore) Get(_ context.Context, convID, dateID, userID string) (*models.Upload, error) {
	u, ok := f.records[uploadMapKey(convID, dateID, userID)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUploadStore) ListByDay(_ context.Context, convID, dateID string) ([]*models.Upload, error) {
	f.listCalls++
	if len(f.listErrs) > 0 {
		err := f.listErrs[0]
		f.listErrs = f.listErrs[1:]
		return nil, err
	}
	var out []*models.Upload
	for _, u := range f.records {
		if u.ConversationID == convID && u.DateID == dateID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeUploadStore) UpdateContent(_ context.Context, convID, dateID, userID, imageURL, storageKey, caption string) error {
	u, ok := f.records[uploadMapKey(convID, dateID, userID)]
	if !ok {
		return pgx.ErrNoRows
	}
	u.ImageURL, u.StorageKey, u.Caption = imageURL, storageKey, caption
	return nil
}

func (f *fakeUploadStore) Delete(_ context.Context, convID, dateID, userID string) error {
	delete(f.records, uploadMapKey(convID, dateID, userID))
	return nil
}

func (f *fakeUploadStore) ListStorageKeys(_ context.Context, convID string) (map[string]bool, error) {
	keys := make(map[string]bool)
	for _, u := range f.records {
		if u.ConversationID == convID && u.StorageKey != "" {
			keys[u.StorageKey] = true
		}
	}
	return keys, nil
}

type fakeDailyPostStore struct {
	posts  map[string]*models.DailyPost // convID|dateID
	getErr error
}

func newFakeDailyPostStore() *fakeDailyPostStore {
	return &fakeDailyPostStore{posts: make(map[string]*models.DailyPost)}
}

func (f *fakeDailyPostStore) Upsert(_ context.Context, p *models.DailyPost) error {
	cp := *p
	f.posts[p.ConversationID+"|"+p.DateID] = &cp
	return nil
}

func (f *fakeDailyPostStore) Get(_ context.Context, convID, dateID string) (*models.DailyPost, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.posts[convID+"|"+dateID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (f *fakeDailyPostStore) ListUpTo(_ context.Context, convID, dateID string) ([]*models.DailyPost, error) {
	var out []*models.DailyPost
	for _, p := range f.posts {
		if p.ConversationID == convID && p.DateID <= dateID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateID < out[j].DateID })
	return out, nil
}

type fakeConversationStore struct {
	conv    *models.Conversation
	touched []string
}

func (f *fakeConversationStore) GetByID(_ context.Context, id string) (*models.Conversation, error) {
	if f.conv == nil || f.conv.ID != id {
		return nil, pgx.ErrNoRows
	}
	cp := *f.conv
	return &cp, nil
}

func (f *fakeConversationStore) Touch(_ context.Context, _, lastMessage string) error {
	f.touched = append(f.touched, lastMessage)
	return nil
}

type fakeBlobStore struct {
	objects    map[string]bool
	deleted    []string
	putErr     error
	failDelete map[string]bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string]bool), failDelete: make(map[string]bool)}
}

func (f *fakeBlobStore) Put(_ context.Context, key string, _ io.Reader, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = true
	return nil
}

func (f *fakeBlobStore) Delete(_ context.Context, key string) error {
	if f.failDelete[key] {
		return errors.New("storage unavailable")
	}
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeBlobStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

type photoFixture struct {
	svc     *PhotoService
	uploads *fakeUploadStore
	posts   *fakeDailyPostStore
	convs   *fakeConversationStore
	blobs   *fakeBlobStore
	now     *time.Time
	conv    *models.Conversation
}

func newPhotoFixture() *photoFixture {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	conv := &models.Conversation{ID: "alice_bob", UserAID: "alice", UserBID: "bob"}
	f := &photoFixture{
		uploads: newFakeUploadStore(),
		posts:   newFakeDailyPostStore(),
		convs:   &fakeConversationStore{conv: conv},
		blobs:   newFakeBlobStore(),
		now:     &now,
		conv:    conv,
	}
	f.svc = &PhotoService{
		uploads:   f.uploads,
		posts:     f.posts,
		convs:     f.convs,
		blobs:     f.blobs,
		publicURL: "https://cdn.example.com",
		nowFunc:   func() time.Time { return *f.now },
	}
	return f
}

func (f *photoFixture) seedUpload(t *testing.T, userID, dateID, caption string) *models.Upload {
	t.Helper()
	key := fmt.Sprintf("conversations/%s/%s/%s_%d.jpg", f.conv.ID, userID, dateID, f.now.UnixMilli())
	u, err := models.NewUpload(f.conv.ID, userID, dateID, "https://cdn.example.com/"+key, key, caption, *f.now)
	require.NoError(t, err)
	require.NoError(t, f.uploads.Upsert(context.Background(), u))
	f.blobs.objects[key] = true
	return u
}

func transientErr() error {
	return &pgconn.PgError{Code: "XX000"}
}

// --- LoadDay ---

func TestLoadDayPartitionsUploads(t *testing.T) {
	f := newPhotoFixture()
	f.seedUpload(t, "alice", "2025-06-01", "mine")
	f.seedUpload(t, "bob", "2025-06-01", "partner's")

	view, err := f.svc.LoadDay(context.Background(), "alice", f.conv, "2025-06-01")
	require.NoError(t, err)

	require.NotNil(t, view.Mine)
	require.NotNil(t, view.Partner)
	assert.Equal(t, "alice", view.Mine.UserID)
	assert.Equal(t, "bob", view.Partner.UserID)
	assert.True(t, view.CanViewPartner)
}

func TestLoadDayStaysLockedWithoutOwnUpload(t *testing.T) {
	f := newPhotoFixture()
	f.seedUpload(t, "alice", "2025-06-01", "first in")

	view, err := f.svc.LoadDay(context.Background(), "bob", f.conv, "2025-06-01")
	require.NoError(t, err)

	assert.Nil(t, view.Mine)
	require.NotNil(t, view.Partner)
	assert.Equal(t, "alice", view.Partner.UserID)
	assert.False(t, view.CanViewPartner)
}

func TestLoadDayRejectsNonMember(t *testing.T) {
	f := newPhotoFixture()

	_, err := f.svc.LoadDay(context.Background(), "mallory", f.conv, "2025-06-01")
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.Zero(t, f.uploads.listCalls)
}

func TestLoadDayRejectsMalformedBucket(t *testing.T) {
	f := newPhotoFixture()

	_, err := f.svc.LoadDay(context.Background(), "alice", f.conv, "June 1st")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLoadDayRetriesTransientThenSucceeds(t *testing.T) {
	f := newPhotoFixture()
	f.seedUpload(t, "alice", "2025-06-01", "made it")
	f.uploads.listErrs = []error{transientErr(), transientErr()}

	view, err := f.svc.LoadDay(context.Background(), "alice", f.conv, "2025-06-01")
	require.NoError(t, err)

	assert.Equal(t, 3, f.uploads.listCalls)
	require.NotNil(t, view.Mine)
	assert.Equal(t, "made it", view.Mine.Caption)
}

func TestLoadDayDegradesToEmptyAfterRetriesExhausted(t *testing.T) {
	f := newPhotoFixture()
	f.seedUpload(t, "alice", "2025-06-01", "never seen")
	f.uploads.listErrs = []error{transientErr(), transientErr(), transientErr()}

	view, err := f.svc.LoadDay(context.Background(), "alice", f.conv, "2025-06-01")
	require.NoError(t, err)

	assert.Equal(t, 3, f.uploads.listCalls)
	assert.Nil(t, view.Mine)
	assert.Nil(t, view.Partner)
	assert.False(t, view.CanViewPartner)
}

func TestLoadDayNonRetryableErrorFailsImmediately(t *testing.T) {
	f := newPhotoFixture()
	f.uploads.listErrs = []error{&pgconn.PgError{Code: "42501"}}

	_, err := f.svc.LoadDay(context.Background(), "alice", f.conv, "2025-06-01")
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.Equal(t, 1, f.uploads.listCalls)
}

func TestLoadDayContinuesWithoutThemeOnPostError(t *testing.T) {
	f := newPhotoFixture()
	f.posts.getErr = transientErr()

	view, err := f.svc.LoadDay(context.Background(), "alice", f.conv, "2025-06-01")
	require.NoError(t, err)
	assert.Nil(t, view.Post)
}

func TestLoadDayIncludesTheme(t *testing.T) {
	f := newPhotoFixture()
	require.NoError(t, f.posts.Upsert(context.Background(), &models.DailyPost{
		ConversationID: f.conv.ID,
		DateID:         "2025-06-01",
		ThemeText:      "Something that made you smile",
	}))

	view, err := f.svc.LoadDay(context.Background(), "alice", f.conv, "2025-06-01")
	require.NoError(t, err)
	require.NotNil(t, view.Post)
	assert.Equal(t, "Something that made you smile", view.Post.ThemeText)
}

// --- SubmitUpload / EditUpload / DeleteUpload ---

func TestSubmitUploadStoresBlobAndMetadata(t *testing.T) {
	f := newPhotoFixture()

	upload, err := f.svc.SubmitUpload(context.Background(), "alice", f.conv, "2025-06-01",
		strings.NewReader("jpeg bytes"), "image/jpeg", "sunset")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(upload.StorageKey, "conversations/alice_bob/alice/2025-06-01_"))
	assert.True(t, f.blobs.objects[upload.StorageKey])
	assert.Equal(t, "https://cdn.example.com/"+upload.StorageKey, upload.ImageURL)

	stored, err := f.uploads.Get(context.Background(), f.conv.ID, "2025-06-01", "alice")
	require.NoError(t, err)
	assert.Equal(t, "sunset", stored.Caption)
	assert.Len(t, f.convs.touched, 1)
}

func TestSubmitUploadOverwriteCleansPreviousBlob(t *testing.T) {
	f := newPhotoFixture()

	first, err := f.svc.SubmitUpload(context.Background(), "alice", f.conv, "2025-06-01",
		strings.NewReader("take one"), "image/jpeg", "v1")
	require.NoError(t, err)

	*f.now = f.now.Add(time.Minute)
	second, err := f.svc.SubmitUpload(context.Background(), "alice", f.conv, "2025-06-01",
		strings.NewReader("take two"), "image/jpeg", "v2")
	require.NoError(t, err)

	assert.NotEqual(t, first.StorageKey, second.StorageKey)
	assert.Contains(t, f.blobs.deleted, first.StorageKey)
	assert.True(t, f.blobs.objects[second.StorageKey])

	stored, err := f.uploads.Get(context.Background(), f.conv.ID, "2025-06-01", "alice")
	require.NoError(t, err)
	assert.Equal(t, "v2", stored.Caption)
	assert.Equal(t, second.StorageKey, stored.StorageKey)
}

func TestSubmitUploadMetadataFailureLeavesBlobForSweep(t *testing.T) {
	f := newPhotoFixture()
	f.uploads.upsertErr = transientErr()

	_, err := f.svc.SubmitUpload(context.Background(), "alice", f.conv, "2025-06-01",
		strings.NewReader("orphan"), "image/jpeg", "")
	assert.ErrorIs(t, err, apperr.ErrTransient)

	// The blob stays put as an orphan candidate for the sweep; nothing is
	// deleted and the conversation activity is not bumped.
	assert.Empty(t, f.blobs.deleted)
	assert.Len(t, f.blobs.objects, 1)
	assert.Empty(t, f.convs.touched)
}

func TestSubmitUploadRejectsNonMember(t *testing.T) {
	f := newPhotoFixture()

	_, err := f.svc.SubmitUpload(context.Background(), "mallory", f.conv, "2025-06-01",
		strings.NewReader("x"), "image/jpeg", "")
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.Empty(t, f.blobs.objects)
}

func TestEditUploadCaptionOnlyKeepsImage(t *testing.T) {
	f := newPhotoFixture()
	seeded := f.seedUpload(t, "alice", "2025-06-01", "old caption")

	edited, err := f.svc.EditUpload(context.Background(), "alice", f.conv, "2025-06-01",
		nil, "", "new caption")
	require.NoError(t, err)

	assert.Equal(t, seeded.ImageURL, edited.ImageURL)
	assert.Equal(t, seeded.StorageKey, edited.StorageKey)
	assert.Equal(t, "new caption", edited.Caption)
	assert.Empty(t, f.blobs.deleted)

	stored, err := f.uploads.Get(context.Background(), f.conv.ID, "2025-06-01", "alice")
	require.NoError(t, err)
	assert.Equal(t, "new caption", stored.Caption)
}

func TestEditUploadWithNewImageReplacesBlob(t *testing.T) {
	f := newPhotoFixture()
	seeded := f.seedUpload(t, "alice", "2025-06-01", "beach")

	*f.now = f.now.Add(time.Minute)
	edited, err := f.svc.EditUpload(context.Background(), "alice", f.conv, "2025-06-01",
		strings.NewReader("retake"), "image/jpeg", "beach, but better")
	require.NoError(t, err)

	assert.NotEqual(t, seeded.StorageKey, edited.StorageKey)
	assert.Contains(t, f.blobs.deleted, seeded.StorageKey)
	assert.True(t, f.blobs.objects[edited.StorageKey])

	stored, err := f.uploads.Get(context.Background(), f.conv.ID, "2025-06-01", "alice")
	require.NoError(t, err)
	assert.Equal(t, edited.StorageKey, stored.StorageKey)
	assert.Equal(t, "beach, but better", stored.Caption)
}

func TestEditUploadMissingRecord(t *testing.T) {
	f := newPhotoFixture()

	_, err := f.svc.EditUpload(context.Background(), "alice", f.conv, "2025-06-01", nil, "", "caption")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteUploadRemovesMetadataAndBlob(t *testing.T) {
	f := newPhotoFixture()
	seeded := f.seedUpload(t, "alice", "2025-06-01", "gone soon")

	require.NoError(t, f.svc.DeleteUpload(context.Background(), "alice", f.conv, "2025-06-01"))

	_, err := f.uploads.Get(context.Background(), f.conv.ID, "2025-06-01", "alice")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	assert.Contains(t, f.blobs.deleted, seeded.StorageKey)
}

// --- SweepOrphans ---

func TestSweepOrphansDeletesUnreferencedBlobs(t *testing.T) {
	f := newPhotoFixture()
	live := f.seedUpload(t, "alice", "2025-06-01", "kept")
	f.blobs.objects["conversations/alice_bob/alice/2025-05-30_1.jpg"] = true
	f.blobs.objects["conversations/alice_bob/bob/2025-05-31_2.jpg"] = true
	f.blobs.failDelete["conversations/alice_bob/bob/2025-05-31_2.jpg"] = true

	result, err := f.svc.SweepOrphans(context.Background(), f.conv.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, f.blobs.objects[live.StorageKey])
}
