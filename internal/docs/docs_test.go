package docs

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func strp(s string) *string { return &s }

func createDoc(t *testing.T, s *InMemory) Document {
	t.Helper()
	doc, err := s.CreateDocument(context.Background(), Document{TypeCode: "cdl", Title: "CDL License"})
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestVersionLogAppendsMonotonically(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	doc := createDoc(t, s)

	v1, err := s.RecordVersion(ctx, doc.ID, VersionInput{CreatedBy: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	v2, err := s.RecordVersion(ctx, doc.ID, VersionInput{CreatedBy: "u1", OCRText: strp("scanned text")})
	if err != nil {
		t.Fatal(err)
	}
	if v1.Version != 1 || v2.Version != 2 {
		t.Fatalf("versions must ascend: %d then %d", v1.Version, v2.Version)
	}

	latest, err := s.LatestVersion(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != v2.ID {
		t.Fatalf("latest must be the newest entry")
	}
}

func TestHasValidOCRUsesLatestOnly(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	doc := createDoc(t, s)

	// No versions yet.
	ok, err := s.HasValidOCR(ctx, doc.ID)
	if err != nil || ok {
		t.Fatalf("no versions means no OCR, got ok=%v err=%v", ok, err)
	}

	// First scan failed, no text.
	_, _ = s.RecordVersion(ctx, doc.ID, VersionInput{CreatedBy: "u1"})
	if ok, _ := s.HasValidOCR(ctx, doc.ID); ok {
		t.Fatalf("nil OCR text is not valid")
	}

	// Rescan succeeded.
	_, _ = s.RecordVersion(ctx, doc.ID, VersionInput{CreatedBy: "u1", OCRText: strp("DL 9344-2210")})
	if ok, _ := s.HasValidOCR(ctx, doc.ID); !ok {
		t.Fatalf("latest version carries text, OCR should be valid")
	}

	// A newer failed scan masks the old text.
	_, _ = s.RecordVersion(ctx, doc.ID, VersionInput{CreatedBy: "u1", OCRText: strp("   ")})
	if ok, _ := s.HasValidOCR(ctx, doc.ID); ok {
		t.Fatalf("whitespace-only text in the latest version is not valid")
	}
}

func TestRecordVersionValidation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	doc := createDoc(t, s)

	if _, err := s.RecordVersion(ctx, doc.ID, VersionInput{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("created_by is required, got %v", err)
	}
	if _, err := s.RecordVersion(ctx, "missing", VersionInput{CreatedBy: "u1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown document must fail, got %v", err)
	}
}

func TestConcurrentVersionsNeverCollide(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	doc := createDoc(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RecordVersion(ctx, doc.ID, VersionInput{CreatedBy: "u1"})
		}()
	}
	wg.Wait()

	versions, err := s.Versions(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[int]bool)
	for _, v := range versions {
		if seen[v.Version] {
			t.Fatalf("duplicate version %d", v.Version)
		}
		seen[v.Version] = true
	}
	if len(versions) != 30 {
		t.Fatalf("expected 30 versions, got %d", len(versions))
	}
}
