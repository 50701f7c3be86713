// Package contacts stores uploaded recipient lists: the raw file goes to blob
// storage and the parsed rows to the files collection.
package contacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kathanp/emailbot/pkg/contacts"
	"github.com/kathanp/emailbot/pkg/logger"
	"github.com/kathanp/emailbot/pkg/storage"
	"github.com/kathanp/emailbot/svc/store"
)

// MaxUploadBytes caps a single upload.
const MaxUploadBytes = 10 << 20

var (
	ErrFileNotFound      = errors.New("contacts: file not found")
	ErrUnsupportedFormat = errors.New("contacts: only CSV files are supported")
	ErrFileTooLarge      = errors.New("contacts: file exceeds upload limit")
)

type Store interface {
	Create(ctx context.Context, f *store.ContactFile) error
	ByID(ctx context.Context, userID, id string) (*store.ContactFile, error)
	List(ctx context.Context, userID string) ([]store.ContactFile, error)
	Delete(ctx context.Context, userID, id string) error
}

type Service struct {
	store Store
	blobs storage.Storage
	log   *slog.Logger
}

func New(st Store, blobs storage.Storage, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{store: st, blobs: blobs, log: log.With(logger.Component("contacts"))}
}

// Upload parses r as CSV and stores both the raw bytes and the parsed rows.
// Nothing is stored when parsing fails.
func (s *Service) Upload(ctx context.Context, userID, filename string, r io.Reader) (*store.ContactFile, error) {
	filename = storage.SanitizeFilename(filename)
	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".csv" && ext != ".txt" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	raw, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("contacts: read upload: %w", err)
	}
	if len(raw) > MaxUploadBytes {
		return nil, ErrFileTooLarge
	}

	sheet, err := contacts.ParseCSV(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	f := &store.ContactFile{
		ID:       bson.NewObjectID(),
		UserID:   userID,
		Filename: filename,
		Size:     int64(len(raw)),
		Columns:  sheet.Columns,
		Contacts: make([]map[string]string, len(sheet.Contacts)),
		RowCount: len(sheet.Contacts),
	}
	for i, c := range sheet.Contacts {
		f.Contacts[i] = c
	}
	f.StorageKey = storage.ObjectKey(userID, f.ID.Hex(), filename)

	if err := s.blobs.Put(ctx, f.StorageKey, bytes.NewReader(raw), int64(len(raw)), "text/csv"); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, f); err != nil {
		if derr := s.blobs.Delete(ctx, f.StorageKey); derr != nil {
			s.log.WarnContext(ctx, "failed to remove orphaned upload",
				slog.String("key", f.StorageKey), logger.Error(derr))
		}
		return nil, err
	}

	s.log.InfoContext(ctx, "contact file uploaded", logger.UserID(userID),
		slog.String("file_id", f.ID.Hex()), logger.Count("rows", f.RowCount))
	return f, nil
}

// List returns metadata for the user's files without their rows.
func (s *Service) List(ctx context.Context, userID string) ([]store.ContactFile, error) {
	return s.store.List(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, id string) (*store.ContactFile, error) {
	f, err := s.store.ByID(ctx, userID, id)
	if notFound(err) {
		return nil, ErrFileNotFound
	}
	return f, err
}

// Open streams the original upload.
func (s *Service) Open(ctx context.Context, userID, id string) (io.ReadCloser, *store.ContactFile, error) {
	f, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, f.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, f, nil
}

// Delete removes the document and its blob. A missing blob is not an error.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	f, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, userID, id); err != nil {
		if notFound(err) {
			return ErrFileNotFound
		}
		return err
	}
	if f.StorageKey != "" {
		if err := s.blobs.Delete(ctx, f.StorageKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			s.log.WarnContext(ctx, "failed to remove upload blob",
				slog.String("key", f.StorageKey), logger.Error(err))
		}
	}
	return nil
}

func notFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID)
}
