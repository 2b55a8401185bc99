// Package documents manages encrypted markdown documents and folders on disk,
// their sidecar metadata, and their archive and trash state.
//
// Each organization owns the directory <root>/<organization id>. Content is
// always written before its sidecar, and mutations of one logical path are
// serialized within the process.
package documents

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/mikepea/marknotes/pkg/marknotes/errs"
	"github.com/mikepea/marknotes/pkg/marknotes/metrics"
	"github.com/mikepea/marknotes/pkg/marknotes/models"
	"github.com/mikepea/marknotes/pkg/marknotes/pathsafe"
	"github.com/mikepea/marknotes/pkg/marknotes/sidecar"
	"github.com/mikepea/marknotes/pkg/marknotes/store"
	"github.com/mikepea/marknotes/pkg/marknotes/vault"
)

// DefaultRetention is how long soft-deleted items stay in the trash.
const DefaultRetention = 30 * 24 * time.Hour

// Scope identifies the organization an operation works in and who asked.
type Scope struct {
	OrganizationID uint
	UserID         uint
}

// ItemType distinguishes documents from folders.
type ItemType string

const (
	TypeFile   ItemType = "file"
	TypeFolder ItemType = "folder"
)

// Item describes one entry of a folder listing.
type Item struct {
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Type       ItemType   `json:"type"`
	ModifiedAt time.Time  `json:"modified_at"`
	Size       int64      `json:"size"`
	Color      string     `json:"color,omitempty"`
	Favorite   bool       `json:"favorite"`
	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	Deleted    bool       `json:"deleted"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// ListOptions selects which lifecycle states a listing includes.
type ListOptions struct {
	IncludeArchived bool
	IncludeDeleted  bool
}

// Manager implements the document lifecycle.
type Manager struct {
	root      string
	codec     *vault.Codec
	index     store.DocumentIndex
	locks     *pathLocks
	now       func() time.Time
	retention time.Duration
	log       zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for lifecycle timestamps.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithRetention overrides DefaultRetention.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithLogger sets the logger for partial failures.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// NewManager returns a Manager storing documents below root.
func NewManager(root string, codec *vault.Codec, index store.DocumentIndex, opts ...Option) (*Manager, error) {
	if codec == nil || index == nil {
		return nil, errors.New("documents: codec and index are required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, err
	}
	m := &Manager{
		root:      abs,
		codec:     codec,
		index:     index,
		locks:     newPathLocks(),
		now:       time.Now,
		retention: DefaultRetention,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) orgRoot(orgID uint) string {
	return filepath.Join(m.root, strconv.FormatUint(uint64(orgID), 10))
}

// resolve returns the cleaned logical path and its location on disk.
func (m *Manager) resolve(orgID uint, logical string) (string, string, error) {
	clean := pathsafe.Clean(logical)
	full, err := pathsafe.Resolve(clean, m.orgRoot(orgID))
	if err != nil {
		return "", "", err
	}
	return clean, full, nil
}

// resolveItem is resolve for operations that cannot target the root.
func (m *Manager) resolveItem(op string, orgID uint, logical string) (string, string, error) {
	if strings.ContainsRune(logical, 0) {
		return "", "", errs.PathEscape(logical)
	}
	if pathsafe.IsRoot(logical) {
		return "", "", errs.Invalid(op, "Path must name a document or folder")
	}
	clean, full, err := m.resolve(orgID, logical)
	if err != nil {
		return "", "", err
	}
	if reserved(clean) {
		return "", "", errs.Invalid(op, "Reserved file name")
	}
	return clean, full, nil
}

// reserved reports whether any segment of clean is hidden from listings or
// belongs to a sidecar.
func reserved(clean string) bool {
	for _, seg := range strings.Split(strings.TrimPrefix(clean, "/"), "/") {
		if strings.HasPrefix(seg, ".") || sidecar.IsSidecar(seg) {
			return true
		}
	}
	return false
}

func lockKey(orgID uint, clean string) string {
	return strconv.FormatUint(uint64(orgID), 10) + ":" + clean
}

// lockTree locks every path together with its folders below the root, so a
// write inside a folder cannot interleave with a move or erase of that folder.
func (m *Manager) lockTree(orgID uint, paths ...string) func() {
	var keys []string
	for _, p := range paths {
		for ; p != "/"; p = pathsafe.Parent(p) {
			keys = append(keys, lockKey(orgID, p))
		}
	}
	return m.locks.lock(keys...)
}

// checkFolders rejects writes below a folder that is in the trash.
func (m *Manager) checkFolders(ctx context.Context, op string, orgID uint, clean string) error {
	for p := pathsafe.Parent(clean); p != "/"; p = pathsafe.Parent(p) {
		doc, err := m.index.FindDocument(ctx, orgID, p)
		if err != nil {
			return errs.Internal(op, err)
		}
		if doc != nil && doc.Deleted {
			return errs.Conflict(op, p, "Folder is in the trash; restore it first")
		}
	}
	return nil
}

// ensureLive returns the index row for doc's path, taking it out of the
// trash if needed. Writing to a trashed path starts a new item.
func (m *Manager) ensureLive(ctx context.Context, doc *models.Document) error {
	row, err := m.index.EnsureDocument(ctx, doc)
	if err != nil {
		return err
	}
	if !row.Deleted {
		return nil
	}
	row.Deleted, row.DeletedAt = false, nil
	return m.index.SaveDocument(ctx, row)
}

func observe(op string, err *error) {
	metrics.ObserveDocumentOp(op, *err)
}

// List returns the immediate children of folder, folders first, then by name.
// Sidecars and temporary files are never listed.
func (m *Manager) List(ctx context.Context, scope Scope, folder string, opts ListOptions) (items []Item, err error) {
	defer observe("list", &err)
	const op = "documents.list"

	clean, full, err := m.resolve(scope.OrganizationID, folder)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && clean == "/" {
			return []Item{}, nil
		}
		return nil, errs.Storage(op, clean, err)
	}
	if !info.IsDir() {
		return nil, errs.Invalid(op, "Path is not a folder")
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, errs.Storage(op, clean, err)
	}

	type entry struct {
		logical string
		info    fs.FileInfo
	}
	var candidates []entry
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if sidecar.IsSidecar(name) || strings.HasPrefix(name, ".") {
			continue
		}
		if !e.IsDir() && !e.Type().IsRegular() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		logical := pathsafe.Join(clean, name)
		candidates = append(candidates, entry{logical: logical, info: fi})
		paths = append(paths, logical)
	}

	docs, err := m.index.DocumentsIn(ctx, scope.OrganizationID, paths)
	if err != nil {
		return nil, errs.Internal(op, err)
	}
	state := make(map[string]*models.Document, len(docs))
	for i := range docs {
		state[docs[i].Path] = &docs[i]
	}

	items = make([]Item, 0, len(candidates))
	for _, c := range candidates {
		doc := state[c.logical]
		if doc != nil {
			if doc.Archived && !opts.IncludeArchived {
				continue
			}
			if doc.Deleted && !opts.IncludeDeleted {
				continue
			}
		}
		items = append(items, m.item(c.logical, filepath.Join(full, c.info.Name()), c.info, doc))
	}
	sortItems(items)
	return items, nil
}

// Trash returns every soft-deleted item of the organization, most recently
// deleted first. Rows whose files are gone are skipped.
func (m *Manager) Trash(ctx context.Context, scope Scope) (items []Item, err error) {
	defer observe("trash", &err)
	const op = "documents.trash"

	docs, err := m.index.ListDeleted(ctx, scope.OrganizationID)
	if err != nil {
		return nil, errs.Internal(op, err)
	}
	items = make([]Item, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		_, full, err := m.resolve(scope.OrganizationID, doc.Path)
		if err != nil {
			continue
		}
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		items = append(items, m.item(doc.Path, full, info, doc))
	}
	return items, nil
}

// Stat describes a single item.
func (m *Manager) Stat(ctx context.Context, scope Scope, logical string) (it *Item, err error) {
	defer observe("stat", &err)
	const op = "documents.stat"

	clean, full, err := m.resolveItem(op, scope.OrganizationID, logical)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, errs.Storage(op, clean, err)
	}
	doc, err := m.index.FindDocument(ctx, scope.OrganizationID, clean)
	if err != nil {
		return nil, errs.Internal(op, err)
	}
	item := m.item(clean, full, info, doc)
	return &item, nil
}

// Read returns the plaintext of a document. Files written before encryption
// was enabled are returned as stored.
func (m *Manager) Read(ctx context.Context, scope Scope, logical string) (content string, err error) {
	defer observe("read", &err)
	const op = "documents.read"

	clean, full, err := m.resolveItem(op, scope.OrganizationID, logical)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", errs.Storage(op, clean, err)
	}
	if info.IsDir() {
		return "", errs.Invalid(op, "Path is a folder")
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", errs.Storage(op, clean, err)
	}
	return m.codec.OpenLegacy(string(data))
}

// Save encrypts content and atomically replaces the document, creating
// parent folders as needed. The archive flag of an existing document is kept;
// saving over a trashed document takes it out of the trash.
func (m *Manager) Save(ctx context.Context, scope Scope, logical, content string) (err error) {
	defer observe("save", &err)
	const op = "documents.save"

	clean, full, err := m.resolveItem(op, scope.OrganizationID, logical)
	if err != nil {
		return err
	}
	unlock := m.lockTree(scope.OrganizationID, clean)
	defer unlock()

	if info, err := os.Stat(full); err == nil && info.IsDir() {
		return errs.Invalid(op, "Path is a folder")
	}
	if err := m.checkFolders(ctx, op, scope.OrganizationID, clean); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o700); err != nil {
		return errs.Storage(op, clean, err)
	}
	sealed, err := m.codec.Seal(content)
	if err != nil {
		return errs.Internal(op, err)
	}
	if err := writeFileAtomic(full, []byte(sealed)); err != nil {
		return errs.Storage(op, clean, err)
	}

	doc := &models.Document{OrganizationID: scope.OrganizationID, Path: clean, CreatedByID: scope.UserID}
	if err := m.ensureLive(ctx, doc); err != nil {
		return errs.Internal(op, err)
	}
	return nil
}

// CreateFolder creates a folder and any missing parents. Creating an existing
// folder succeeds and takes it out of the trash.
func (m *Manager) CreateFolder(ctx context.Context, scope Scope, logical string) (err error) {
	defer observe("create_folder", &err)
	const op = "documents.create_folder"

	clean, full, err := m.resolve(scope.OrganizationID, logical)
	if err != nil {
		return err
	}
	if clean == "/" {
		if err := os.MkdirAll(full, 0o700); err != nil {
			return errs.Storage(op, clean, err)
		}
		return nil
	}
	if reserved(clean) {
		return errs.Invalid(op, "Reserved file name")
	}
	unlock := m.lockTree(scope.OrganizationID, clean)
	defer unlock()

	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		return errs.Conflict(op, clean, "A document with this name already exists")
	}
	if err := m.checkFolders(ctx, op, scope.OrganizationID, clean); err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o700); err != nil {
		return errs.Storage(op, clean, err)
	}
	doc := &models.Document{OrganizationID: scope.OrganizationID, Path: clean, IsFolder: true, CreatedByID: scope.UserID}
	if err := m.ensureLive(ctx, doc); err != nil {
		return errs.Internal(op, err)
	}
	return nil
}

// Erase permanently deletes a document, bypassing the trash.
func (m *Manager) Erase(ctx context.Context, scope Scope, logical string) (err error) {
	defer observe("erase", &err)
	return m.erase(ctx, scope, logical, false)
}

// EraseFolder permanently deletes a folder and everything below it.
func (m *Manager) EraseFolder(ctx context.Context, scope Scope, logical string) (err error) {
	defer observe("erase_folder", &err)
	return m.erase(ctx, scope, logical, true)
}

func (m *Manager) erase(ctx context.Context, scope Scope, logical string, folder bool) error {
	const op = "documents.erase"

	clean, full, err := m.resolveItem(op, scope.OrganizationID, logical)
	if err != nil {
		return err
	}
	unlock := m.lockTree(scope.OrganizationID, clean)
	defer unlock()

	info, err := os.Stat(full)
	if err != nil {
		return errs.Storage(op, clean, err)
	}
	if info.IsDir() != folder {
		if folder {
			return errs.Invalid(op, "Path is not a folder")
		}
		return errs.Invalid(op, "Path is a folder")
	}
	return m.removeItem(ctx, scope.OrganizationID, clean, full)
}

// removeItem deletes content, sidecar and index rows. Caller holds the lock.
func (m *Manager) removeItem(ctx context.Context, orgID uint, clean, full string) error {
	const op = "documents.erase"
	if err := os.RemoveAll(full); err != nil {
		return errs.Storage(op, clean, err)
	}
	if err := sidecar.Remove(full); err != nil {
		return errs.Storage(op, clean, err)
	}
	if err := m.index.DeleteDocuments(ctx, orgID, clean); err != nil {
		return errs.Internal(op, err)
	}
	return nil
}

// Rename moves a document or folder. The destination must not exist.
func (m *Manager) Rename(ctx context.Context, scope Scope, from, to string) (err error) {
	defer observe("rename", &err)
	const op = "documents.rename"

	src, srcFull, err := m.resolveItem(op, scope.OrganizationID, from)
	if err != nil {
		return err
	}
	dst, dstFull, err := m.resolveItem(op, scope.OrganizationID, to)
	if err != nil {
		return err
	}

	unlock := m.lockTree(scope.OrganizationID, src, dst)
	defer unlock()

	info, err := os.Stat(srcFull)
	if err != nil {
		return errs.Storage(op, src, err)
	}
	if info.IsDir() && src != dst && pathsafe.Within(src, dst) {
		return errs.Invalid(op, "Cannot move a folder into itself")
	}
	if _, err := os.Lstat(dstFull); err == nil {
		return errs.Conflict(op, dst, "Destination already exists")
	} else if !errors.Is(err, fs.ErrNotExist) {
		return errs.Storage(op, dst, err)
	}
	if err := m.checkFolders(ctx, op, scope.OrganizationID, dst); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dstFull), 0o700); err != nil {
		return errs.Storage(op, dst, err)
	}
	if err := os.Rename(srcFull, dstFull); err != nil {
		return errs.Storage(op, src, err)
	}
	if err := sidecar.Move(srcFull, dstFull); err != nil {
		m.log.Warn().Err(err).Str("from", src).Str("to", dst).Msg("content moved but sidecar did not follow")
		return errs.Storage(op, src, err)
	}
	if err := m.index.MoveDocuments(ctx, scope.OrganizationID, src, dst); err != nil {
		return errs.Internal(op, err)
	}
	return nil
}

// SetColor sets or, with a nil or empty color, clears an item's color.
func (m *Manager) SetColor(ctx context.Context, scope Scope, logical string, color *string) (err error) {
	defer observe("set_color", &err)
	var v any
	if color != nil && *color != "" {
		v = *color
	}
	return m.setMetadata("documents.set_color", scope, logical, sidecar.Patch{sidecar.KeyColor: v})
}

// SetFavorite marks or unmarks an item as favorite.
func (m *Manager) SetFavorite(ctx context.Context, scope Scope, logical string, favorite bool) (err error) {
	defer observe("set_favorite", &err)
	var v any
	if favorite {
		v = true
	}
	return m.setMetadata("documents.set_favorite", scope, logical, sidecar.Patch{sidecar.KeyFavorite: v})
}

func (m *Manager) setMetadata(op string, scope Scope, logical string, patch sidecar.Patch) error {
	clean, full, err := m.resolveItem(op, scope.OrganizationID, logical)
	if err != nil {
		return err
	}
	unlock := m.lockTree(scope.OrganizationID, clean)
	defer unlock()

	if _, err := os.Stat(full); err != nil {
		return errs.Storage(op, clean, err)
	}
	if err := sidecar.Set(full, patch); err != nil {
		return errs.Storage(op, clean, err)
	}
	return nil
}

// Archive hides an item from default listings.
func (m *Manager) Archive(ctx context.Context, scope Scope, logical string) (err error) {
	defer observe("archive", &err)
	return m.setState(ctx, "documents.archive", scope, logical, func(d *models.Document, now time.Time) bool {
		if d.Archived {
			return false
		}
		d.Archived, d.ArchivedAt = true, &now
		return true
	})
}

// Unarchive reverses Archive.
func (m *Manager) Unarchive(ctx context.Context, scope Scope, logical string) (err error) {
	defer observe("unarchive", &err)
	return m.setState(ctx, "documents.unarchive", scope, logical, func(d *models.Document, _ time.Time) bool {
		if !d.Archived {
			return false
		}
		d.Archived, d.ArchivedAt = false, nil
		return true
	})
}

// SoftDelete moves an item to the trash. Its bytes stay on disk until
// Restore or PurgeExpired.
func (m *Manager) SoftDelete(ctx context.Context, scope Scope, logical string) (err error) {
	defer observe("soft_delete", &err)
	return m.setState(ctx, "documents.soft_delete", scope, logical, func(d *models.Document, now time.Time) bool {
		if d.Deleted {
			return false
		}
		d.Deleted, d.DeletedAt = true, &now
		return true
	})
}

// Restore takes an item out of the trash.
func (m *Manager) Restore(ctx context.Context, scope Scope, logical string) (err error) {
	defer observe("restore", &err)
	return m.setState(ctx, "documents.restore", scope, logical, func(d *models.Document, _ time.Time) bool {
		if !d.Deleted {
			return false
		}
		d.Deleted, d.DeletedAt = false, nil
		return true
	})
}

// setState applies change to the index row of an existing item. change
// reports whether it modified the row; unchanged rows are not written.
func (m *Manager) setState(ctx context.Context, op string, scope Scope, logical string, change func(*models.Document, time.Time) bool) error {
	clean, full, err := m.resolveItem(op, scope.OrganizationID, logical)
	if err != nil {
		return err
	}
	unlock := m.lockTree(scope.OrganizationID, clean)
	defer unlock()

	info, err := os.Stat(full)
	if err != nil {
		return errs.Storage(op, clean, err)
	}
	doc, err := m.index.EnsureDocument(ctx, &models.Document{
		OrganizationID: scope.OrganizationID,
		Path:           clean,
		IsFolder:       info.IsDir(),
		CreatedByID:    scope.UserID,
	})
	if err != nil {
		return errs.Internal(op, err)
	}
	if !change(doc, m.now().UTC()) {
		return nil
	}
	if err := m.index.SaveDocument(ctx, doc); err != nil {
		return errs.Internal(op, err)
	}
	return nil
}

// PurgeExpired permanently removes items of every organization that were
// soft-deleted longer than the retention period ago. It keeps going past
// individual failures and returns them joined.
func (m *Manager) PurgeExpired(ctx context.Context) (purged int, err error) {
	defer observe("purge", &err)
	const op = "documents.purge"

	cutoff := m.now().UTC().Add(-m.retention)
	docs, err := m.index.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, errs.Internal(op, err)
	}

	var failures []error
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}
		ok, err := m.purgeOne(ctx, doc)
		if err != nil {
			m.log.Error().Err(err).Uint("organization_id", doc.OrganizationID).Str("path", doc.Path).Msg("purge failed")
			failures = append(failures, err)
			continue
		}
		if ok {
			purged++
		}
	}
	metrics.AddPurged(purged)
	return purged, errors.Join(failures...)
}

func (m *Manager) purgeOne(ctx context.Context, doc models.Document) (bool, error) {
	unlock := m.lockTree(doc.OrganizationID, doc.Path)
	defer unlock()

	// A purged parent folder may already have taken this row with it.
	current, err := m.index.FindDocument(ctx, doc.OrganizationID, doc.Path)
	if err != nil {
		return false, errs.Internal("documents.purge", err)
	}
	if current == nil || !current.Deleted {
		return false, nil
	}
	_, full, err := m.resolve(doc.OrganizationID, doc.Path)
	if err != nil {
		return false, err
	}
	if err := m.removeItem(ctx, doc.OrganizationID, doc.Path, full); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) item(logical, full string, info fs.FileInfo, doc *models.Document) Item {
	md := sidecar.Get(full)
	it := Item{
		Name:       info.Name(),
		Path:       logical,
		Type:       TypeFile,
		ModifiedAt: info.ModTime().UTC(),
		Size:       info.Size(),
		Color:      md.Color,
		Favorite:   md.Favorite,
	}
	if info.IsDir() {
		it.Type = TypeFolder
		it.Size = 0
	}
	if doc != nil {
		it.Archived, it.ArchivedAt = doc.Archived, doc.ArchivedAt
		it.Deleted, it.DeletedAt = doc.Deleted, doc.DeletedAt
	}
	return it
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Type != b.Type {
			return a.Type == TypeFolder
		}
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})
}

// writeFileAtomic writes data to a uniquely named temporary file in the
// target's directory, syncs it, and renames it over target.
func writeFileAtomic(target string, data []byte) (err error) {
	tmp := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".tmp-"+ulid.Make().String())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}
