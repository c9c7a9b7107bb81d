// Package docs models compliance documents and their append-only version
// log. OCR output arrives as opaque text from an external service; the core
// only records it.
package docs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"fleetcore.org/internal/ids"
)

var (
	ErrNotFound     = errors.New("docs: not found")
	ErrInvalidInput = errors.New("docs: invalid input")
)

// Document carries immutable core metadata. Content changes arrive as new
// DocumentVersion entries, never as edits to the document itself.
type Document struct {
	ID            string     `json:"id"`
	TypeCode      string     `json:"type_code"`
	Title         string     `json:"title"`
	Issuer        string     `json:"issuer,omitempty"`
	IssueDate     *time.Time `json:"issue_date,omitempty"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	HashIntegrity string     `json:"hash_integrity,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// DocumentVersion is one append-only log entry. Version numbers are strictly
// increasing per document; duplicates are impossible, gaps are tolerated.
type DocumentVersion struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"document_id"`
	Version       int       `json:"version"`
	OCRText       *string   `json:"ocr_text,omitempty"`
	OCRConfidence *float64  `json:"ocr_confidence,omitempty"`
	FileURI       *string   `json:"file_uri,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedBy     string    `json:"created_by"`
}

// VersionInput is the payload for recording a new version.
type VersionInput struct {
	OCRText       *string
	OCRConfidence *float64
	FileURI       *string
	CreatedBy     string
}

// Service defines document operations.
type Service interface {
	CreateDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	RecordVersion(ctx context.Context, documentID string, in VersionInput) (DocumentVersion, error)
	LatestVersion(ctx context.Context, documentID string) (DocumentVersion, error)
	Versions(ctx context.Context, documentID string) ([]DocumentVersion, error)
	HasValidOCR(ctx context.Context, documentID string) (bool, error)
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu       sync.RWMutex
	docs     map[string]Document
	versions map[string][]DocumentVersion // documentID -> ascending by version
	nowFn    func() time.Time
	newID    func() string
}

// NewInMemory creates an empty document store.
func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		docs:     make(map[string]Document),
		versions: make(map[string][]DocumentVersion),
		nowFn:    func() time.Time { return time.Now().UTC() },
		newID:    ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures InMemory.
type Option func(*InMemory)

// WithClock injects the time source.
func WithClock(nowFn func() time.Time) Option {
	return func(s *InMemory) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

// WithIDGenerator injects the identifier generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *InMemory) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func (s *InMemory) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	if strings.TrimSpace(doc.TypeCode) == "" || strings.TrimSpace(doc.Title) == "" {
		return Document{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = s.newID()
	}
	doc.CreatedAt = s.nowFn()
	s.docs[doc.ID] = doc
	return doc, nil
}

func (s *InMemory) GetDocument(ctx context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// RecordVersion appends the next version for the document. The version
// number is allocated under the lock, so concurrent writers can never mint
// duplicates.
func (s *InMemory) RecordVersion(ctx context.Context, documentID string, in VersionInput) (DocumentVersion, error) {
	if strings.TrimSpace(in.CreatedBy) == "" {
		return DocumentVersion{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[documentID]; !ok {
		return DocumentVersion{}, ErrNotFound
	}
	next := 1
	if existing := s.versions[documentID]; len(existing) > 0 {
		next = existing[len(existing)-1].Version + 1
	}
	v := DocumentVersion{
		ID:            s.newID(),
		DocumentID:    documentID,
		Version:       next,
		OCRText:       in.OCRText,
		OCRConfidence: in.OCRConfidence,
		FileURI:       in.FileURI,
		CreatedAt:     s.nowFn(),
		CreatedBy:     in.CreatedBy,
	}
	s.versions[documentID] = append(s.versions[documentID], v)
	return v, nil
}

// LatestVersion returns the entry with the highest version number.
func (s *InMemory) LatestVersion(ctx context.Context, documentID string) (DocumentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs := s.versions[documentID]
	if len(vs) == 0 {
		return DocumentVersion{}, ErrNotFound
	}
	return vs[len(vs)-1], nil
}

func (s *InMemory) Versions(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs := s.versions[documentID]
	out := make([]DocumentVersion, len(vs))
	copy(out, vs)
	return out, nil
}

// HasValidOCR reports whether the latest version carries OCR text. Text that
// is blank after trimming counts as a failed extraction. Earlier versions
// without text do not matter once a newer scan succeeded.
func (s *InMemory) HasValidOCR(ctx context.Context, documentID string) (bool, error) {
	latest, err := s.LatestVersion(ctx, documentID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return latest.OCRText != nil && strings.TrimSpace(*latest.OCRText) != "", nil
}
