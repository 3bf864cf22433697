package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"daily-album-backend/internal/apperr"
	"daily-album-backend/internal/daybucket"
	"daily-album-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	// uploadFetchTimeout caps the mandatory uploads read. The underlying
	// request is not aborted past the deadline; it is just treated as
	// failed.
	uploadFetchTimeout = 20 * time.Second
	// uploadFetchMaxRetries bounds the retry loop absorbing the transient
	// internal error class.
	uploadFetchMaxRetries = 3
)

// UploadStore is the metadata store for daily uploads.
type UploadStore interface {
	Upsert(ctx context.Context, u *models.Upload) error
	Get(ctx context.Context, convID, dateID, userID string) (*models.Upload, error)
	ListByDay(ctx context.Context, convID, dateID string) ([]*models.Upload, error)
	UpdateContent(ctx context.Context, convID, dateID, userID, imageURL, storageKey, caption string) error
	Delete(ctx context.Context, convID, dateID, userID string) error
	ListStorageKeys(ctx context.Context, convID string) (map[string]bool, error)
}

// DailyPostStore is the store for daily themes and memory posts.
type DailyPostStore interface {
	Upsert(ctx context.Context, p *models.DailyPost) error
	Get(ctx context.Context, convID, dateID string) (*models.DailyPost, error)
	ListUpTo(ctx context.Context, convID, dateID string) ([]*models.DailyPost, error)
}

// ConversationStore covers the conversation access the photo flow needs.
type ConversationStore interface {
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	Touch(ctx context.Context, id, lastMessage string) error
}

// PhotoService handles daily uploads, the unlock rule and blob storage
type PhotoService struct {
	uploads   UploadStore
	posts     DailyPostStore
	convs     ConversationStore
	blobs     BlobStore
	publicURL string
	nowFunc   func() time.Time
}

// NewPhotoService creates a new photo service
func NewPhotoService(
	uploads UploadStore,
	posts DailyPostStore,
	convs ConversationStore,
	s3cfg S3Config,
) (*PhotoService, error) {
	blobs, err := newS3BlobStore(s3cfg)
	if err != nil {
		return nil, err
	}

	publicURL := s3cfg.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s3cfg.Bucket, s3cfg.Region)
	}

	return &PhotoService{
		uploads:   uploads,
		posts:     posts,
		convs:     convs,
		blobs:     blobs,
		publicURL: strings.TrimRight(publicURL, "/"),
		nowFunc:   time.Now,
	}, nil
}

// CanViewPartnerUpload is the reciprocal unlock rule: a user may view the
// partner's photo for a day if and only if their own upload for that day
// exists with a non-empty image reference. Pure predicate, no I/O, and
// independent of the partner's own upload state.
func CanViewPartnerUpload(myUpload *models.Upload) bool {
	return myUpload != nil && strings.TrimSpace(myUpload.ImageURL) != ""
}

// DayView is the result of loading one conversation day bucket.
type DayView struct {
	DateID         string
	Post           *models.DailyPost // nil when there is no theme/memory today
	Mine           *models.Upload
	Partner        *models.Upload
	CanViewPartner bool
}

// LoadDay fetches the day's theme/memory and both uploads, partitions them
// into mine and partner's, and evaluates the unlock rule.
//
// The theme/memory read is optional: absence or a transient failure degrades
// to "no theme today". The uploads read is mandatory; transient internal
// errors are retried a bounded number of times, and remaining failures are
// classified so the caller can distinguish a permission problem (re-login)
// from a connectivity one (retry).
func (s *PhotoService) LoadDay(ctx context.Context, userID string, conv *models.Conversation, dateID string) (*DayView, error) {
	if !conv.HasMember(userID) {
		return nil, fmt.Errorf("user is not a member of this conversation: %w", apperr.ErrPermissionDenied)
	}
	if _, err := daybucket.Parse(dateID, time.UTC); err != nil {
		return nil, fmt.Errorf("%s: %w", err, apperr.ErrValidation)
	}

	view := &DayView{DateID: dateID}

	post, err := s.posts.Get(ctx, conv.ID, dateID)
	if err != nil {
		classified := apperr.Classify(err)
		if !errors.Is(classified, apperr.ErrNotFound) {
			// Optional record: degrade rather than fail the whole day.
			log.Warn().Err(err).
				Str("conversation_id", conv.ID).
				Str("date_id", dateID).
				Msg("Daily post read failed, continuing without theme")
		}
	} else {
		view.Post = post
	}

	uploads, err := s.fetchUploadsWithRetry(ctx, conv.ID, dateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load uploads: %w", err)
	}

	partnerID := conv.PartnerOf(userID)
	for _, u := range uploads {
		switch u.UserID {
		case userID:
			view.Mine = u
		case partnerID:
			view.Partner = u
		}
	}
	view.CanViewPartner = CanViewPartnerUpload(view.Mine)
	return view, nil
}

// fetchUploadsWithRetry reads the day's uploads under a fixed wall-clock
// timeout, retrying the known transient internal error class with a small
// increasing backoff. Exhausted retries on that class degrade to no data.
func (s *PhotoService) fetchUploadsWithRetry(ctx context.Context, convID, dateID string) ([]*models.Upload, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadFetchTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= uploadFetchMaxRetries; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt) * 200 * time.Millisecond
			if delay > time.Second {
				delay = time.Second
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("uploads read timed out: %w", apperr.ErrConnectivity)
			}
		}

		uploads, err := s.uploads.ListByDay(ctx, convID, dateID)
		if err == nil {
			return uploads, nil
		}
		lastErr = err

		if !apperr.Retryable(err) {
			return nil, apperr.Classify(err)
		}
		log.Warn().Err(err).
			Int("attempt", attempt).
			Str("conversation_id", convID).
			Str("date_id", dateID).
			Msg("Transient error fetching uploads, retrying")
	}

	// The transient class exhausted its retries: degrade to empty rather
	// than failing loudly.
	log.Error().Err(lastErr).
		Str("conversation_id", convID).
		Str("date_id", dateID).
		Msg("Uploads fetch retries exhausted, returning empty day")
	return nil, nil
}

// Memories is the today/past partition of a conversation's daily posts.
type Memories struct {
	Today *models.DailyPost
	Past  []*models.DailyPost // newest first
}

// LoadMemories returns daily posts up to today, split by comparing bucket ids
// as strings.
func (s *PhotoService) LoadMemories(ctx context.Context, userID string, conv *models.Conversation, todayID string) (*Memories, error) {
	if !conv.HasMember(userID) {
		return nil, fmt.Errorf("user is not a member of this conversation: %w", apperr.ErrPermissionDenied)
	}

	posts, err := s.posts.ListUpTo(ctx, conv.ID, todayID)
	if err != nil {
		return nil, apperr.Classify(err)
	}

	m := &Memories{}
	for _, p := range posts {
		if p.DateID == todayID {
			m.Today = p
		} else {
			m.Past = append(m.Past, p)
		}
	}
	// ListUpTo returns oldest first; past memories render newest first.
	for i, j := 0, len(m.Past)-1; i < j; i, j = i+1, j-1 {
		m.Past[i], m.Past[j] = m.Past[j], m.Past[i]
	}
	return m, nil
}

// SubmitUpload stores the image blob, then writes the metadata record keyed
// by (conversation, day bucket, user). A repeated submit overwrites in place.
// The two writes are not transactional: a metadata failure after a
// successful blob put leaves an orphan candidate, which is logged for the
// sweep rather than rolled back.
func (s *PhotoService) SubmitUpload(ctx context.Context, userID string, conv *models.Conversation, dateID string, image io.Reader, contentType, caption string) (*models.Upload, error) {
	if !conv.HasMember(userID) {
		return nil, fmt.Errorf("user is not a member of this conversation: %w", apperr.ErrPermissionDenied)
	}
	if _, err := daybucket.Parse(dateID, time.UTC); err != nil {
		return nil, fmt.Errorf("%s: %w", err, apperr.ErrValidation)
	}
	if image == nil {
		return nil, fmt.Errorf("image is required: %w", apperr.ErrValidation)
	}

	key := s.blobKey(conv.ID, userID, dateID)
	if err := s.blobs.Put(ctx, key, image, contentType); err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	upload, err := models.NewUpload(conv.ID, userID, dateID, s.blobURL(key), key, caption, s.nowFunc())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, apperr.ErrValidation)
	}

	// Replacing an earlier submit for the same day leaves its old blob
	// behind; remember it before the overwrite so it can be cleaned up.
	previous, _ := s.uploads.Get(ctx, conv.ID, dateID, userID)

	if err := s.uploads.Upsert(ctx, upload); err != nil {
		log.Error().Err(err).
			Str("storage_key", key).
			Msg("Metadata write failed after blob upload, orphan candidate")
		return nil, apperr.Classify(err)
	}

	if previous != nil && previous.StorageKey != "" && previous.StorageKey != key {
		s.deleteBlobBestEffort(ctx, previous.StorageKey)
	}

	if err := s.convs.Touch(ctx, conv.ID, "📸 New photo shared"); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("Failed to bump conversation activity")
	}

	return upload, nil
}

// EditUpload replaces the caption and, when a new image is given, the blob.
// The old blob is deleted best-effort after the replacement is stored.
func (s *PhotoService) EditUpload(ctx context.Context, userID string, conv *models.Conversation, dateID string, newImage io.Reader, contentType, newCaption string) (*models.Upload, error) {
	if !conv.HasMember(userID) {
		return nil, fmt.Errorf("user is not a member of this conversation: %w", apperr.ErrPermissionDenied)
	}

	current, err := s.uploads.Get(ctx, conv.ID, dateID, userID)
	if err != nil {
		return nil, apperr.Classify(err)
	}

	imageURL, storageKey := current.ImageURL, current.StorageKey
	if newImage != nil {
		key := s.blobKey(conv.ID, userID, dateID)
		if err := s.blobs.Put(ctx, key, newImage, contentType); err != nil {
			return nil, fmt.Errorf("failed to store replacement image: %w", err)
		}
		if current.StorageKey != "" {
			s.deleteBlobBestEffort(ctx, current.StorageKey)
		}
		imageURL, storageKey = s.blobURL(key), key
	}

	if err := s.uploads.UpdateContent(ctx, conv.ID, dateID, userID, imageURL, storageKey, newCaption); err != nil {
		return nil, apperr.Classify(err)
	}

	current.ImageURL = imageURL
	current.StorageKey = storageKey
	current.Caption = newCaption
	current.UpdatedAt = s.nowFunc()
	return current, nil
}

// DeleteUpload removes the metadata record, then attempts blob cleanup. The
// metadata deletion is authoritative; a blob cleanup failure is logged and
// swallowed.
func (s *PhotoService) DeleteUpload(ctx context.Context, userID string, conv *models.Conversation, dateID string) error {
	if !conv.HasMember(userID) {
		return fmt.Errorf("user is not a member of this conversation: %w", apperr.ErrPermissionDenied)
	}

	current, err := s.uploads.Get(ctx, conv.ID, dateID, userID)
	if err != nil {
		return apperr.Classify(err)
	}

	if err := s.uploads.Delete(ctx, conv.ID, dateID, userID); err != nil {
		return apperr.Classify(err)
	}

	if current.StorageKey != "" {
		s.deleteBlobBestEffort(ctx, current.StorageKey)
	}
	return nil
}

// SweepResult reports an orphan sweep outcome.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// SweepOrphans lists the conversation's blobs and deletes those no metadata
// record references. Complements the inline best-effort cleanup, which can
// miss blobs when a delete or edit partially fails.
func (s *PhotoService) SweepOrphans(ctx context.Context, convID string) (*SweepResult, error) {
	live, err := s.uploads.ListStorageKeys(ctx, convID)
	if err != nil {
		return nil, apperr.Classify(err)
	}

	keys, err := s.blobs.List(ctx, fmt.Sprintf("conversations/%s/", convID))
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}

	result := &SweepResult{}
	for _, key := range keys {
		result.Scanned++
		if live[key] {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("storage_key", key).Msg("Failed to delete orphaned blob")
			result.Failed++
			continue
		}
		result.Deleted++
	}
	return result, nil
}

// DailyPostUpsert is the out-of-band authoring entry point for themes and
// memory images.
func (s *PhotoService) DailyPostUpsert(ctx context.Context, convID, dateID, themeText, memoryImageURL string) (*models.DailyPost, error) {
	if _, err := daybucket.Parse(dateID, time.UTC); err != nil {
		return nil, fmt.Errorf("%s: %w", err, apperr.ErrValidation)
	}
	if _, err := s.convs.GetByID(ctx, convID); err != nil {
		return nil, apperr.Classify(err)
	}
	post := &models.DailyPost{
		ConversationID: convID,
		DateID:         dateID,
		ThemeText:      themeText,
		MemoryImageURL: memoryImageURL,
		CreatedAt:      s.nowFunc(),
	}
	if err := s.posts.Upsert(ctx, post); err != nil {
		return nil, apperr.Classify(err)
	}
	return post, nil
}

func (s *PhotoService) blobKey(convID, userID, dateID string) string {
	return fmt.Sprintf("conversations/%s/%s/%s_%d.jpg", convID, userID, dateID, s.nowFunc().UnixMilli())
}

func (s *PhotoService) blobURL(key string) string {
	return s.publicURL + "/" + key
}

func (s *PhotoService) deleteBlobBestEffort(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("storage_key", key).Msg("Could not delete blob from storage")
	}
}
