package documents

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mikepea/marknotes/pkg/marknotes/database"
	"github.com/mikepea/marknotes/pkg/marknotes/errs"
	"github.com/mikepea/marknotes/pkg/marknotes/sidecar"
	"github.com/mikepea/marknotes/pkg/marknotes/store"
	"github.com/mikepea/marknotes/pkg/marknotes/vault"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func setupTestManager(t *testing.T, opts ...Option) (*Manager, string) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	codec, err := vault.New(bytes.Repeat([]byte{0x42}, vault.KeySize))
	if err != nil {
		t.Fatalf("Failed to create codec: %v", err)
	}
	root := t.TempDir()
	m, err := NewManager(root, codec, store.NewGormStore(db), opts...)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, root
}

var scope = Scope{OrganizationID: 1, UserID: 1}

func names(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestEndToEndNoteLifecycle(t *testing.T) {
	m, root := setupTestManager(t)
	ctx := context.Background()

	if err := m.Save(ctx, scope, "/notes/a.md", "hello"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(root, "1", "notes", "a.md"))
	if err != nil {
		t.Fatalf("Expected file on disk: %v", err)
	}
	if strings.Contains(string(raw), "hello") || !vault.IsEnvelope(string(raw)) {
		t.Errorf("Expected encrypted envelope on disk, got %q", raw)
	}

	got, err := m.Read(ctx, scope, "/notes/a.md")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("Expected hello, got %q", got)
	}

	items, _ := m.List(ctx, scope, "/notes", ListOptions{})
	if len(items) != 1 || items[0].Path != "/notes/a.md" || items[0].Type != TypeFile {
		t.Fatalf("Expected a.md in listing, got %+v", items)
	}

	if err := m.SoftDelete(ctx, scope, "/notes/a.md"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	items, _ = m.List(ctx, scope, "/notes", ListOptions{})
	if len(items) != 0 {
		t.Errorf("Expected deleted item hidden, got %v", names(items))
	}
	items, _ = m.List(ctx, scope, "/notes", ListOptions{IncludeDeleted: true})
	if len(items) != 1 || !items[0].Deleted || items[0].DeletedAt == nil {
		t.Errorf("Expected deleted item with timestamp, got %+v", items)
	}
	trash, _ := m.Trash(ctx, scope)
	if len(trash) != 1 || trash[0].Path != "/notes/a.md" {
		t.Errorf("Expected item in trash, got %+v", trash)
	}
	if got, _ := m.Read(ctx, scope, "/notes/a.md"); got != "hello" {
		t.Error("Soft-deleted documents must remain readable")
	}

	if err := m.Restore(ctx, scope, "/notes/a.md"); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	items, _ = m.List(ctx, scope, "/notes", ListOptions{})
	if len(items) != 1 || items[0].Deleted {
		t.Errorf("Expected restored item listed, got %+v", items)
	}
}

func TestSaveKeepsLifecycleFlags(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	m.Save(ctx, scope, "/a.md", "v1")
	m.Archive(ctx, scope, "/a.md")
	if err := m.Save(ctx, scope, "/a.md", "v2"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	it, err := m.Stat(ctx, scope, "/a.md")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !it.Archived {
		t.Error("Expected overwrite to keep the archived flag")
	}
	if got, _ := m.Read(ctx, scope, "/a.md"); got != "v2" {
		t.Errorf("Expected v2, got %q", got)
	}
}

func TestReadLegacyPlaintext(t *testing.T) {
	m, root := setupTestManager(t)
	ctx := context.Background()

	dir := filepath.Join(root, "1")
	os.MkdirAll(dir, 0o700)
	os.WriteFile(filepath.Join(dir, "old.md"), []byte("# written before encryption"), 0o600)

	got, err := m.Read(ctx, scope, "/old.md")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != "# written before encryption" {
		t.Errorf("Expected plaintext returned unchanged, got %q", got)
	}
}

func TestReadErrors(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()
	m.CreateFolder(ctx, scope, "/folder")

	if _, err := m.Read(ctx, scope, "/missing.md"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
	if _, err := m.Read(ctx, scope, "/folder"); !errors.Is(err, errs.ErrInvalid) {
		t.Errorf("Expected Invalid for folder, got %v", err)
	}
	if _, err := m.Read(ctx, scope, "/"); !errors.Is(err, errs.ErrInvalid) {
		t.Errorf("Expected Invalid for root, got %v", err)
	}
}

func TestPathsStayInsideOrganization(t *testing.T) {
	m, root := setupTestManager(t)
	ctx := context.Background()

	if err := m.Save(ctx, scope, "../../2/stolen.md", "x"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "1", "2", "stolen.md")); err != nil {
		t.Errorf("Expected climbing path to be clamped inside the organization: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "2", "stolen.md")); err == nil {
		t.Error("Write escaped into another organization")
	}

	if err := m.Save(ctx, scope, "/a\x00.md", "x"); !errors.Is(err, errs.ErrPathEscape) {
		t.Errorf("Expected PathEscape for NUL byte, got %v", err)
	}

	other := Scope{OrganizationID: 2, UserID: 1}
	if _, err := m.Read(ctx, other, "/2/stolen.md"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Expected other organization not to see the file, got %v", err)
	}
}

func TestCreateFolderIsIdempotent(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := m.CreateFolder(ctx, scope, "/projects/2026"); err != nil {
			t.Fatalf("CreateFolder #%d failed: %v", i+1, err)
		}
	}
	items, _ := m.List(ctx, scope, "/projects", ListOptions{})
	if len(items) != 1 || items[0].Type != TypeFolder {
		t.Errorf("Expected exactly one folder, got %+v", items)
	}

	m.Save(ctx, scope, "/file.md", "x")
	if err := m.CreateFolder(ctx, scope, "/file.md"); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("Expected Conflict creating folder over a file, got %v", err)
	}
	if err := m.Save(ctx, scope, "/projects", "x"); !errors.Is(err, errs.ErrInvalid) {
		t.Errorf("Expected Invalid saving over a folder, got %v", err)
	}
}

func TestListOrderingAndFiltering(t *testing.T) {
	m, root := setupTestManager(t)
	ctx := context.Background()

	m.Save(ctx, scope, "/b.md", "b")
	m.Save(ctx, scope, "/A.md", "a")
	m.CreateFolder(ctx, scope, "/zeta")
	m.CreateFolder(ctx, scope, "/alpha")
	m.Save(ctx, scope, "/archived.md", "x")
	m.Archive(ctx, scope, "/archived.md")
	m.SetColor(ctx, scope, "/b.md", strPtr("#00ff00"))
	os.WriteFile(filepath.Join(root, "1", ".b.md.tmp-01ABC"), []byte("partial"), 0o600)

	items, err := m.List(ctx, scope, "/", ListOptions{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"alpha", "zeta", "A.md", "b.md"}
	if got := names(items); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if items[3].Color != "#00ff00" {
		t.Errorf("Expected color from sidecar, got %q", items[3].Color)
	}

	items, _ = m.List(ctx, scope, "/", ListOptions{IncludeArchived: true})
	if len(items) != 5 {
		t.Errorf("Expected archived item included, got %v", names(items))
	}
}

func TestListEmptyAndMissing(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	items, err := m.List(ctx, scope, "/", ListOptions{})
	if err != nil || len(items) != 0 {
		t.Errorf("Expected empty root listing, got %v (%v)", items, err)
	}
	if _, err := m.List(ctx, scope, "/nope", ListOptions{}); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Expected NotFound for missing folder, got %v", err)
	}
	m.Save(ctx, scope, "/a.md", "x")
	if _, err := m.List(ctx, scope, "/a.md", ListOptions{}); !errors.Is(err, errs.ErrInvalid) {
		t.Errorf("Expected Invalid listing a file, got %v", err)
	}
}

func TestRename(t *testing.T) {
	m, root := setupTestManager(t)
	ctx := context.Background()

	m.Save(ctx, scope, "/notes/a.md", "hello")
	m.SetFavorite(ctx, scope, "/notes/a.md", true)
	m.Archive(ctx, scope, "/notes/a.md")

	if err := m.Rename(ctx, scope, "/notes/a.md", "/done/b.md"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if got, _ := m.Read(ctx, scope, "/done/b.md"); got != "hello" {
		t.Errorf("Expected content at new path, got %q", got)
	}
	it, err := m.Stat(ctx, scope, "/done/b.md")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !it.Favorite || !it.Archived {
		t.Errorf("Expected metadata and state to follow the rename, got %+v", it)
	}
	if _, err := os.Stat(sidecar.Path(filepath.Join(root, "1", "notes", "a.md"))); !os.IsNotExist(err) {
		t.Error("Expected old sidecar to be gone")
	}
}

func TestRenameConflictsAndErrors(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	m.Save(ctx, scope, "/a.md", "a")
	m.Save(ctx, scope, "/b.md", "b")
	m.CreateFolder(ctx, scope, "/dir")

	if err := m.Rename(ctx, scope, "/a.md", "/b.md"); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("Expected Conflict, got %v", err)
	}
	if got, _ := m.Read(ctx, scope, "/b.md"); got != "b" {
		t.Error("Destination must be untouched after a conflict")
	}
	if err := m.Rename(ctx, scope, "/missing.md", "/c.md"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
	if err := m.Rename(ctx, scope, "/dir", "/dir/inner"); !errors.Is(err, errs.ErrInvalid) {
		t.Errorf("Expected Invalid moving a folder into itself, got %v", err)
	}
	if err := m.Rename(ctx, scope, "/a.md", "/"); !errors.Is(err, errs.ErrInvalid) {
		t.Errorf("Expected Invalid renaming onto root, got %v", err)
	}
}

func TestRenameFolderMovesChildState(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	m.Save(ctx, scope, "/old/x.md", "x")
	m.SoftDelete(ctx, scope, "/old/x.md")

	if err := m.Rename(ctx, scope, "/old", "/new"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	trash, _ := m.Trash(ctx, scope)
	if len(trash) != 1 || trash[0].Path != "/new/x.md" {
		t.Errorf("Expected child state moved with folder, got %+v", trash)
	}
}

func TestSetMetadataRequiresItem(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	if err := m.SetColor(ctx, scope, "/missing.md", strPtr("red")); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
	if err := m.SetFavorite(ctx, scope, "/missing.md", true); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}

	m.Save(ctx, scope, "/a.md", "x")
	m.SetColor(ctx, scope, "/a.md", strPtr("red"))
	m.SetColor(ctx, scope, "/a.md", nil)
	it, _ := m.Stat(ctx, scope, "/a.md")
	if it.Color != "" {
		t.Errorf("Expected color cleared, got %q", it.Color)
	}
}

func TestArchiveIsIdempotent(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m, _ := setupTestManager(t, WithClock(clock.Now))
	ctx := context.Background()
	m.Save(ctx, scope, "/a.md", "x")

	m.Archive(ctx, scope, "/a.md")
	first, _ := m.Stat(ctx, scope, "/a.md")
	clock.Set(clock.Now().Add(time.Hour))
	if err := m.Archive(ctx, scope, "/a.md"); err != nil {
		t.Fatalf("Second Archive failed: %v", err)
	}
	second, _ := m.Stat(ctx, scope, "/a.md")
	if !first.ArchivedAt.Equal(*second.ArchivedAt) {
		t.Error("Archiving twice must not move the timestamp")
	}

	m.Unarchive(ctx, scope, "/a.md")
	if err := m.Unarchive(ctx, scope, "/a.md"); err != nil {
		t.Errorf("Second Unarchive failed: %v", err)
	}
	it, _ := m.Stat(ctx, scope, "/a.md")
	if it.Archived || it.ArchivedAt != nil {
		t.Errorf("Expected unarchived, got %+v", it)
	}
	if err := m.Archive(ctx, scope, "/missing.md"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestPurgeRetentionBoundary(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &testClock{}
	m, root := setupTestManager(t, WithClock(clock.Now))
	ctx := context.Background()

	m.Save(ctx, scope, "/old.md", "old")
	m.Save(ctx, scope, "/recent.md", "recent")
	m.Save(ctx, Scope{OrganizationID: 2}, "/other.md", "other")

	clock.Set(now.Add(-31 * 24 * time.Hour))
	m.SoftDelete(ctx, scope, "/old.md")
	m.SoftDelete(ctx, Scope{OrganizationID: 2}, "/other.md")
	clock.Set(now.Add(-29 * 24 * time.Hour))
	m.SoftDelete(ctx, scope, "/recent.md")
	clock.Set(now)

	n, err := m.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 purged items, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(root, "1", "old.md")); !os.IsNotExist(err) {
		t.Error("Expected 31-day-old item removed from disk")
	}
	if _, err := os.Stat(filepath.Join(root, "2", "other.md")); !os.IsNotExist(err) {
		t.Error("Expected purge to cover every organization")
	}
	if got, err := m.Read(ctx, scope, "/recent.md"); err != nil || got != "recent" {
		t.Errorf("Expected 29-day-old item kept, got %q (%v)", got, err)
	}

	n, _ = m.PurgeExpired(ctx)
	if n != 0 {
		t.Errorf("Expected nothing left to purge, got %d", n)
	}
}

func TestPurgeFolderWithDeletedChildren(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m, root := setupTestManager(t, WithClock(clock.Now))
	ctx := context.Background()

	m.Save(ctx, scope, "/dir/x.md", "x")
	m.SoftDelete(ctx, scope, "/dir/x.md")
	m.SoftDelete(ctx, scope, "/dir")
	clock.Set(clock.Now().Add(DefaultRetention + time.Hour))

	n, err := m.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if n < 1 {
		t.Errorf("Expected the folder to be purged, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(root, "1", "dir")); !os.IsNotExist(err) {
		t.Error("Expected folder removed from disk")
	}
	if trash, _ := m.Trash(ctx, scope); len(trash) != 0 {
		t.Errorf("Expected empty trash, got %+v", trash)
	}
}

func TestErase(t *testing.T) {
	m, root := setupTestManager(t)
	ctx := context.Background()

	m.Save(ctx, scope, "/a.md", "x")
	m.SetColor(ctx, scope, "/a.md", strPtr("red"))
	m.Save(ctx, scope, "/dir/b.md", "y")

	if err := m.Erase(ctx, scope, "/dir"); !errors.Is(err, errs.ErrInvalid) {
		t.Errorf("Expected Invalid erasing a folder as a file, got %v", err)
	}
	if err := m.EraseFolder(ctx, scope, "/a.md"); !errors.Is(err, errs.ErrInvalid) {
		t.Errorf("Expected Invalid erasing a file as a folder, got %v", err)
	}

	if err := m.Erase(ctx, scope, "/a.md"); err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	if _, err := os.Stat(sidecar.Path(filepath.Join(root, "1", "a.md"))); !os.IsNotExist(err) {
		t.Error("Expected sidecar erased with the document")
	}
	if err := m.EraseFolder(ctx, scope, "/dir"); err != nil {
		t.Fatalf("EraseFolder failed: %v", err)
	}
	items, _ := m.List(ctx, scope, "/", ListOptions{IncludeArchived: true, IncludeDeleted: true})
	if len(items) != 0 {
		t.Errorf("Expected nothing left, got %v", names(items))
	}
	if err := m.Erase(ctx, scope, "/a.md"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Expected NotFound erasing twice, got %v", err)
	}
}

func TestConcurrentSavesSamePath(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errCh := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- m.Save(ctx, scope, "/race.md", "same content")
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Errorf("Concurrent Save failed: %v", err)
		}
	}
	if got, _ := m.Read(ctx, scope, "/race.md"); got != "same content" {
		t.Errorf("Expected intact content, got %q", got)
	}
	if n := m.locks.size(); n != 0 {
		t.Errorf("Expected lock table to drain, %d entries left", n)
	}
}

func strPtr(s string) *string { return &s }

func TestSaveOverTrashedDocumentStartsFresh(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &testClock{now: start}
	m, _ := setupTestManager(t, WithClock(clock.Now))
	ctx := context.Background()

	m.Save(ctx, scope, "/notes/a.md", "old note")
	if err := m.SoftDelete(ctx, scope, "/notes/a.md"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	clock.Set(start.Add(29 * 24 * time.Hour))
	if err := m.Save(ctx, scope, "/notes/a.md", "brand new note"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	items, _ := m.List(ctx, scope, "/notes", ListOptions{})
	if got := names(items); len(got) != 1 || got[0] != "a.md" {
		t.Errorf("Expected saved document in default listing, got %v", got)
	}
	if trash, _ := m.Trash(ctx, scope); len(trash) != 0 {
		t.Errorf("Expected empty trash after save, got %+v", trash)
	}

	clock.Set(start.Add(31 * 24 * time.Hour))
	n, err := m.PurgeExpired(ctx)
	if err != nil || n != 0 {
		t.Errorf("Expected nothing purged, got %d (%v)", n, err)
	}
	if got, err := m.Read(ctx, scope, "/notes/a.md"); err != nil || got != "brand new note" {
		t.Errorf("Expected saved document to survive purge, got %q (%v)", got, err)
	}
}

func TestCreateFolderOverTrashedFolder(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	m.CreateFolder(ctx, scope, "/dir")
	m.SoftDelete(ctx, scope, "/dir")
	if err := m.CreateFolder(ctx, scope, "/dir"); err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	it, err := m.Stat(ctx, scope, "/dir")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if it.Deleted || it.DeletedAt != nil {
		t.Errorf("Expected folder out of the trash, got %+v", it)
	}
}

func TestWritesBelowTrashedFolderAreRejected(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	m.Save(ctx, scope, "/dir/x.md", "x")
	m.Save(ctx, scope, "/y.md", "y")
	m.SoftDelete(ctx, scope, "/dir")

	if err := m.Save(ctx, scope, "/dir/new.md", "lost"); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("Expected Conflict saving into a trashed folder, got %v", err)
	}
	if err := m.Save(ctx, scope, "/dir/x.md", "lost"); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("Expected Conflict overwriting inside a trashed folder, got %v", err)
	}
	if err := m.CreateFolder(ctx, scope, "/dir/sub"); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("Expected Conflict creating a folder inside a trashed folder, got %v", err)
	}
	if err := m.Rename(ctx, scope, "/y.md", "/dir/y.md"); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("Expected Conflict moving into a trashed folder, got %v", err)
	}
	if got, _ := m.Read(ctx, scope, "/dir/x.md"); got != "x" {
		t.Errorf("Expected trashed content untouched, got %q", got)
	}

	m.Restore(ctx, scope, "/dir")
	if err := m.Save(ctx, scope, "/dir/new.md", "kept"); err != nil {
		t.Errorf("Expected Save to succeed after restore, got %v", err)
	}
}

func TestReservedNamesRejected(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	m.Save(ctx, scope, "/a.md", "a")
	m.SetColor(ctx, scope, "/a.md", strPtr("red"))

	for _, p := range []string{"/a.md" + sidecar.Suffix, "/.plan.md", "/.a.md.tmp-01J0000000000000000000000", "/.hidden/x.md"} {
		entryPoints := map[string]error{
			"save":          m.Save(ctx, scope, p, "secret"),
			"create_folder": m.CreateFolder(ctx, scope, p),
			"rename_to":     m.Rename(ctx, scope, "/a.md", p),
			"rename_from":   m.Rename(ctx, scope, p, "/b.md"),
			"erase":         m.Erase(ctx, scope, p),
			"set_color":     m.SetColor(ctx, scope, p, strPtr("blue")),
			"archive":       m.Archive(ctx, scope, p),
			"soft_delete":   m.SoftDelete(ctx, scope, p),
		}
		_, readErr := m.Read(ctx, scope, p)
		entryPoints["read"] = readErr
		_, statErr := m.Stat(ctx, scope, p)
		entryPoints["stat"] = statErr

		for name, err := range entryPoints {
			if !errors.Is(err, errs.ErrInvalid) {
				t.Errorf("%s %s: expected Invalid, got %v", name, p, err)
			}
		}
	}

	it, err := m.Stat(ctx, scope, "/a.md")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if it.Color != "red" {
		t.Errorf("Expected sidecar untouched, got color %q", it.Color)
	}
	items, _ := m.List(ctx, scope, "/", ListOptions{IncludeArchived: true, IncludeDeleted: true})
	if got := names(items); len(got) != 1 || got[0] != "a.md" {
		t.Errorf("Expected only a.md on disk, got %v", got)
	}
}

func TestSaveWaitsForFolderLock(t *testing.T) {
	m, _ := setupTestManager(t)
	ctx := context.Background()

	unlock := m.lockTree(scope.OrganizationID, "/a")
	done := make(chan error, 1)
	go func() {
		done <- m.Save(ctx, scope, "/a/x.md", "x")
	}()

	select {
	case err := <-done:
		t.Fatalf("Save finished while its folder was locked: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Save failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Save did not finish after the folder lock was released")
	}
	if n := m.locks.size(); n != 0 {
		t.Errorf("Expected lock table to drain, %d entries left", n)
	}
}
