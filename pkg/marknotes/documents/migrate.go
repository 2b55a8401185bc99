package documents

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mikepea/marknotes/pkg/marknotes/errs"
	"github.com/mikepea/marknotes/pkg/marknotes/models"
	"github.com/mikepea/marknotes/pkg/marknotes/sidecar"
)

// legacySuffix matches names like "todo.archived-1700000000000.md" or
// "old.deleted-1700000000000" that encoded state in the file name.
var legacySuffix = regexp.MustCompile(`^(.+)\.(archived|deleted)-(\d{10,})(\.md)?$`)

type legacyItem struct {
	full     string
	original string
	state    string
	at       time.Time
	isDir    bool
}

// MigrateLegacySuffixes renames items whose state is encoded as a filename
// suffix back to their original names and records that state in the index.
// Items whose original name is taken are left alone and reported.
func (m *Manager) MigrateLegacySuffixes(ctx context.Context, orgID uint) (migrated int, err error) {
	defer observe("migrate_legacy", &err)
	const op = "documents.migrate_legacy"

	base := m.orgRoot(orgID)
	var found []legacyItem
	walkErr := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == base {
				return filepath.SkipDir
			}
			return err
		}
		if p == base || sidecar.IsSidecar(d.Name()) {
			return nil
		}
		match := legacySuffix.FindStringSubmatch(d.Name())
		if match == nil {
			return nil
		}
		ms, err := strconv.ParseInt(match[3], 10, 64)
		if err != nil {
			return nil
		}
		found = append(found, legacyItem{
			full:     p,
			original: match[1] + match[4],
			state:    match[2],
			at:       time.UnixMilli(ms).UTC(),
			isDir:    d.IsDir(),
		})
		return nil
	})
	if walkErr != nil {
		return 0, errs.Storage(op, "/", walkErr)
	}

	// Deepest first so renaming a folder does not invalidate paths below it.
	sort.Slice(found, func(i, j int) bool {
		return strings.Count(found[i].full, string(filepath.Separator)) > strings.Count(found[j].full, string(filepath.Separator))
	})

	var failures []error
	for _, it := range found {
		if err := m.migrateOne(ctx, orgID, base, it); err != nil {
			m.log.Warn().Err(err).Str("file", it.full).Msg("legacy migration skipped")
			failures = append(failures, err)
			continue
		}
		migrated++
	}
	return migrated, errors.Join(failures...)
}

// MigrateAllLegacySuffixes runs MigrateLegacySuffixes for every
// organization directory under the document root.
func (m *Manager) MigrateAllLegacySuffixes(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, errs.Storage("documents.migrate_legacy", "/", err)
	}
	var (
		total    int
		failures []error
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		orgID, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		n, err := m.MigrateLegacySuffixes(ctx, uint(orgID))
		total += n
		if err != nil {
			failures = append(failures, err)
		}
	}
	return total, errors.Join(failures...)
}

func (m *Manager) migrateOne(ctx context.Context, orgID uint, base string, it legacyItem) error {
	const op = "documents.migrate_legacy"

	target := filepath.Join(filepath.Dir(it.full), it.original)
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return errs.Storage(op, target, err)
	}
	logical := "/" + filepath.ToSlash(rel)

	unlock := m.lockTree(orgID, logical)
	defer unlock()

	if _, err := os.Lstat(target); err == nil {
		return errs.Conflict(op, logical, "Original name is already taken")
	}
	if err := os.Rename(it.full, target); err != nil {
		return errs.Storage(op, logical, err)
	}
	if err := sidecar.Move(it.full, target); err != nil {
		return errs.Storage(op, logical, err)
	}
	if it.isDir {
		// Children were migrated first and recorded under the old folder name.
		oldRel, err := filepath.Rel(base, it.full)
		if err != nil {
			return errs.Storage(op, logical, err)
		}
		if err := m.index.MoveDocuments(ctx, orgID, "/"+filepath.ToSlash(oldRel), logical); err != nil {
			return errs.Internal(op, err)
		}
	}

	doc, err := m.index.EnsureDocument(ctx, &models.Document{OrganizationID: orgID, Path: logical, IsFolder: it.isDir})
	if err != nil {
		return errs.Internal(op, err)
	}
	at := it.at
	switch it.state {
	case "archived":
		doc.Archived, doc.ArchivedAt = true, &at
	case "deleted":
		doc.Deleted, doc.DeletedAt = true, &at
	}
	if err := m.index.SaveDocument(ctx, doc); err != nil {
		return errs.Internal(op, err)
	}
	return nil
}
