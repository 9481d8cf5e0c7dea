package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/AdamBeresnev/bracket-battles/internal/media"
	"github.com/AdamBeresnev/bracket-battles/internal/storage"
	"github.com/AdamBeresnev/bracket-battles/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
)

// ImageUploader stores an entry image and returns where it can be fetched.
type ImageUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*storage.UploadResult, error)
}

type EntryService struct {
	db       *sqlx.DB
	store    *store.CompetitionStore
	uploader ImageUploader
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewEntryService wires the entry service. uploader may be nil, image uploads are then rejected.
func NewEntryService(db *sqlx.DB, store *store.CompetitionStore, uploader ImageUploader, clock clockwork.Clock, logger *slog.Logger) *EntryService {
	return &EntryService{db: db, store: store, uploader: uploader, clock: clock, logger: logger}
}

type ImageUpload struct {
	ContentType string
	Body        io.Reader
}

type EntryInput struct {
	Selection string
	// ImageLink is an external image or video link. Image takes precedence when both are set.
	ImageLink string
	Image     *ImageUpload
}

// SubmitEntry adds the current user's entry. Seeds are handed out in submission order starting at 1.
func (s *EntryService) SubmitEntry(ctx context.Context, competitionID uuid.UUID, input EntryInput) (*bracket.Entry, error) {
	userID, err := currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	selection := strings.TrimSpace(input.Selection)
	if selection == "" {
		return nil, ErrEmptySelection
	}

	competition, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, lookupError("competition", err)
	}
	if err := acceptingEntries(competition, s.clock.Now()); err != nil {
		return nil, err
	}
	if _, err := s.store.GetEntryByUser(ctx, competitionID, userID); err == nil {
		return nil, ErrDuplicateEntry
	} else if !store.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check existing entry: %w", err)
	}

	imageURL, err := s.resolveImage(ctx, competitionID, input)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock the competition so concurrent submissions get distinct seeds
	competition, err = s.store.GetCompetitionForUpdate(ctx, tx, competitionID)
	if err != nil {
		return nil, lookupError("competition", err)
	}
	now := s.clock.Now().UTC()
	if err := acceptingEntries(competition, now); err != nil {
		return nil, err
	}

	exists, err := s.store.HasEntryByUserTx(ctx, tx, competitionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing entry: %w", err)
	}
	if exists {
		return nil, ErrDuplicateEntry
	}

	maxSeed, err := s.store.MaxSeedTx(ctx, tx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get next seed: %w", err)
	}

	entry := bracket.Entry{
		ID:            uuid.New(),
		CompetitionID: competitionID,
		UserID:        &userID,
		Selection:     selection,
		ImageURL:      imageURL,
		Seed:          maxSeed + 1,
		CreatedAt:     now,
	}
	if err := s.store.CreateEntries(ctx, tx, []bracket.Entry{entry}); err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Entry submitted", "competition_id", competitionID, "entry_id", entry.ID, "seed", entry.Seed)
	return &entry, nil
}

// GetUserEntry returns the current user's entry in a competition.
func (s *EntryService) GetUserEntry(ctx context.Context, competitionID uuid.UUID) (*bracket.Entry, error) {
	userID, err := currentUserID(ctx)
	if err != nil {
		return nil, err
	}
	entry, err := s.store.GetEntryByUser(ctx, competitionID, userID)
	if err != nil {
		return nil, lookupError("entry", err)
	}
	return entry, nil
}

// UpdateEntry lets the owner change their entry until entries close. An input without any image
// keeps the current one.
func (s *EntryService) UpdateEntry(ctx context.Context, entryID uuid.UUID, input EntryInput) (*bracket.Entry, error) {
	userID, err := currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	selection := strings.TrimSpace(input.Selection)
	if selection == "" {
		return nil, ErrEmptySelection
	}

	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, lookupError("entry", err)
	}
	if !entry.IsOwnedBy(userID) {
		return nil, ErrForbidden
	}

	competition, err := s.store.GetCompetition(ctx, entry.CompetitionID)
	if err != nil {
		return nil, lookupError("competition", err)
	}
	if err := acceptingEntries(competition, s.clock.Now()); err != nil {
		return nil, err
	}

	imageURL, err := s.resolveImage(ctx, entry.CompetitionID, input)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	competition, err = s.store.GetCompetitionForUpdate(ctx, tx, entry.CompetitionID)
	if err != nil {
		return nil, lookupError("competition", err)
	}
	if err := acceptingEntries(competition, s.clock.Now()); err != nil {
		return nil, err
	}

	entry, err = s.store.GetEntryTx(ctx, tx, entryID)
	if err != nil {
		return nil, lookupError("entry", err)
	}
	entry.Selection = selection
	if imageURL != nil {
		entry.ImageURL = imageURL
	}

	if err := s.store.UpdateEntry(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("failed to update entry: %w", err)
	}

	return entry, tx.Commit()
}

// resolveImage uploads input.Image or normalises input.ImageLink. It returns nil when neither is set.
func (s *EntryService) resolveImage(ctx context.Context, competitionID uuid.UUID, input EntryInput) (*string, error) {
	if input.Image != nil {
		if s.uploader == nil {
			return nil, ErrUploadsDisabled
		}
		if !media.IsImageContentType(input.Image.ContentType) {
			return nil, fmt.Errorf("%w: unsupported content type %q", ErrInvalidImage, input.Image.ContentType)
		}

		key := fmt.Sprintf("entries/%s/%s%s", competitionID, uuid.New(), media.ExtensionFor(input.Image.ContentType))
		result, err := s.uploader.Upload(ctx, key, input.Image.ContentType, input.Image.Body)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to upload entry image", "competition_id", competitionID, "error", err)
			return nil, fmt.Errorf("failed to upload image: %w", err)
		}
		location := result.Location
		return &location, nil
	}

	ref, err := media.Normalize(input.ImageLink)
	if err != nil {
		if errors.Is(err, media.ErrInvalidLink) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
		return nil, err
	}
	if ref.Kind == media.KindNone || ref.URL == "" {
		return nil, nil
	}
	return &ref.URL, nil
}

// acceptingEntries rejects submissions outside the entry phase or after the deadline.
func acceptingEntries(competition *bracket.Competition, now time.Time) error {
	switch competition.Status {
	case bracket.CompetitionUpcoming:
		return ErrNotAcceptingEntries
	case bracket.CompetitionAcceptingEntries:
		if now.After(competition.EntryDeadline) {
			return ErrDeadlinePassed
		}
		return nil
	}
	return ErrDeadlinePassed
}
