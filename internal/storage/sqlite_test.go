package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_documents_status", "idx_documents_uploaded_at", "idx_chunk_vectors_document_id"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s: count = %d, want 1", idx, count)
		}
	}
}

func TestDocumentLifecycle(t *testing.T) {
	s := openTestStore(t)

	doc := Document{
		ID:         "doc-1",
		Title:      "Quarterly report",
		Path:       "/tmp/report.pdf",
		UploadedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	if err := s.InsertDocument(doc); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}

	got, err := s.GetDocument("doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Status != DocStatusIndexing {
		t.Errorf("Status = %q, want %q (default)", got.Status, DocStatusIndexing)
	}
	if got.Title != doc.Title || got.Path != doc.Path {
		t.Errorf("GetDocument = %+v, want title/path from %+v", got, doc)
	}
	if !got.UploadedAt.Equal(doc.UploadedAt) {
		t.Errorf("UploadedAt = %v, want %v", got.UploadedAt, doc.UploadedAt)
	}

	if err := s.SetDocumentStatus("doc-1", DocStatusReady); err != nil {
		t.Fatalf("SetDocumentStatus: %v", err)
	}
	got, err = s.GetDocument("doc-1")
	if err != nil {
		t.Fatalf("GetDocument after status update: %v", err)
	}
	if got.Status != DocStatusReady {
		t.Errorf("Status = %q, want %q", got.Status, DocStatusReady)
	}

	if err := s.DeleteDocument("doc-1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := s.GetDocument("doc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument after delete: err = %v, want ErrNotFound", err)
	}

	// Deleting a missing row is a no-op, not an error.
	if err := s.DeleteDocument("doc-1"); err != nil {
		t.Errorf("DeleteDocument twice: %v", err)
	}
}

func TestSetDocumentStatus_NotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetDocumentStatus("nope", DocStatusReady); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListDocumentsByStatus(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		doc := Document{
			ID:         fmt.Sprintf("doc-%d", i),
			Title:      fmt.Sprintf("Doc %d", i),
			Status:     DocStatusReady,
			UploadedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if i == 2 {
			doc.Status = DocStatusIndexing
		}
		if err := s.InsertDocument(doc); err != nil {
			t.Fatalf("InsertDocument %d: %v", i, err)
		}
	}

	ready, err := s.ListDocumentsByStatus(DocStatusReady, 10)
	if err != nil {
		t.Fatalf("ListDocumentsByStatus: %v", err)
	}
	if len(ready) != 4 {
		t.Fatalf("len(ready) = %d, want 4", len(ready))
	}
	// Most recent first.
	if ready[0].ID != "doc-4" {
		t.Errorf("ready[0].ID = %q, want doc-4", ready[0].ID)
	}

	indexing, err := s.ListDocumentsByStatus(DocStatusIndexing, 10)
	if err != nil {
		t.Fatalf("ListDocumentsByStatus(indexing): %v", err)
	}
	if len(indexing) != 1 || indexing[0].ID != "doc-2" {
		t.Errorf("indexing = %+v, want single doc-2", indexing)
	}
}

func TestGetDocumentsByIDs_FiltersStatus(t *testing.T) {
	s := openTestStore(t)

	if err := s.InsertDocument(Document{ID: "a", Title: "A", Status: DocStatusReady}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertDocument(Document{ID: "b", Title: "B", Status: DocStatusIndexing}); err != nil {
		t.Fatal(err)
	}

	docs, err := s.GetDocumentsByIDs([]string{"a", "b", "missing"}, DocStatusReady)
	if err != nil {
		t.Fatalf("GetDocumentsByIDs: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "a" {
		t.Errorf("docs = %+v, want only ready document a", docs)
	}
}

func TestModelRegistryCRUD(t *testing.T) {
	s := openTestStore(t)

	rows := []ModelRow{
		{ID: "phi3.5", Capabilities: `["fast"]`, Provider: "local", Enabled: true, Priority: 5, SuccessRate: 1.0, Position: 0},
		{ID: "mistral-nemo", Capabilities: `["reasoning","code"]`, Provider: "local", Enabled: true, Priority: 8, SuccessRate: 0.9, Position: 1},
	}
	for _, m := range rows {
		if err := s.UpsertModel(m); err != nil {
			t.Fatalf("UpsertModel %s: %v", m.ID, err)
		}
	}

	models, err := s.ListModels()
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("len(models) = %d, want 2", len(models))
	}
	if models[0].ID != "phi3.5" || models[1].ID != "mistral-nemo" {
		t.Errorf("registry order wrong: %s, %s", models[0].ID, models[1].ID)
	}

	if err := s.SetModelEnabled("phi3.5", false); err != nil {
		t.Fatalf("SetModelEnabled: %v", err)
	}
	if err := s.UpdateModelSuccessRate("mistral-nemo", 0.75); err != nil {
		t.Fatalf("UpdateModelSuccessRate: %v", err)
	}

	models, err = s.ListModels()
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if models[0].Enabled {
		t.Error("phi3.5 still enabled after SetModelEnabled(false)")
	}
	if models[1].SuccessRate != 0.75 {
		t.Errorf("SuccessRate = %v, want 0.75", models[1].SuccessRate)
	}

	// Upsert replaces in place.
	if err := s.UpsertModel(ModelRow{ID: "phi3.5", Capabilities: `["fast","code"]`, Provider: "local", Enabled: true, Priority: 6, SuccessRate: 1.0, Position: 0}); err != nil {
		t.Fatalf("UpsertModel replace: %v", err)
	}
	models, _ = s.ListModels()
	if len(models) != 2 {
		t.Fatalf("len(models) after upsert = %d, want 2", len(models))
	}

	if err := s.DeleteModel("phi3.5"); err != nil {
		t.Fatalf("DeleteModel: %v", err)
	}
	if err := s.DeleteModel("phi3.5"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteModel twice: err = %v, want ErrNotFound", err)
	}
}
