// Package reconcile detects added, modified, and removed files against the
// stored index by comparing on-disk SHA-256 content hashes to File rows. It
// never writes; it returns a batch the background indexer acts on.
package reconcile

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codeplane-dev/codeplane/internal/ignore"
	"github.com/codeplane-dev/codeplane/internal/storage"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// ChangeKind classifies one reconciled path.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// ChangedFile is one path's reconciliation outcome. NewHash is set for
// ChangeAdded and ChangeModified; FileID is set when the path already has a
// File row (ChangeModified, ChangeRemoved).
type ChangedFile struct {
	Kind    ChangeKind
	Path    string
	FileID  types.FileID
	NewHash string
}

// Reconcile compares candidatePaths (repo-relative, forward-slashed) against
// the stored files table and reports what changed. Paths are read relative
// to repoRoot. A path present on disk but absent from storage is Added; a
// path present in both with a differing content hash is Modified; a stored
// path absent from candidatePaths (a full-tree walk) or present but missing
// on disk is Removed.
//
// When candidatePaths comes from a watcher delta rather than a full walk,
// pass fullWalk=false: removal is then only detected for paths in
// candidatePaths that no longer exist on disk, not for stored paths outside
// the delta.
func Reconcile(ctx context.Context, store *storage.Store, ign *ignore.Engine, repoRoot string, candidatePaths []string, fullWalk bool) ([]ChangedFile, error) {
	var result []ChangedFile

	err := store.Session(ctx, storage.ReadOnly, func(ctx context.Context, tx *sql.Tx) error {
		stored, err := loadStoredHashes(ctx, tx)
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(candidatePaths))
		for _, relPath := range candidatePaths {
			if ign != nil && ign.IsExcludedRel(relPath) {
				continue
			}
			seen[relPath] = true

			hash, ok, err := hashOnDisk(repoRoot, relPath)
			if err != nil {
				return err
			}
			existing, wasStored := stored[relPath]
			switch {
			case !ok && wasStored:
				result = append(result, ChangedFile{Kind: ChangeRemoved, Path: relPath, FileID: existing.fileID})
			case !ok:
				// never indexed, and gone from disk too: nothing to report
			case !wasStored:
				result = append(result, ChangedFile{Kind: ChangeAdded, Path: relPath, NewHash: hash})
			case existing.contentHash != hash:
				result = append(result, ChangedFile{Kind: ChangeModified, Path: relPath, FileID: existing.fileID, NewHash: hash})
			}
		}

		if fullWalk {
			for relPath, existing := range stored {
				if seen[relPath] {
					continue
				}
				result = append(result, ChangedFile{Kind: ChangeRemoved, Path: relPath, FileID: existing.fileID})
			}
		}

		return nil
	})

	return result, err
}

type storedFile struct {
	fileID      types.FileID
	contentHash string
}

func loadStoredHashes(ctx context.Context, tx *sql.Tx) (map[string]storedFile, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, path, content_hash FROM files`)
	if err != nil {
		return nil, fmt.Errorf("load stored files: %w", err)
	}
	defer rows.Close()

	out := make(map[string]storedFile)
	for rows.Next() {
		var id int64
		var path, hash string
		if err := rows.Scan(&id, &path, &hash); err != nil {
			return nil, err
		}
		out[path] = storedFile{fileID: types.FileID(id), contentHash: hash}
	}
	return out, rows.Err()
}

func hashOnDisk(repoRoot, relPath string) (string, bool, error) {
	content, err := os.ReadFile(filepath.Join(repoRoot, filepath.FromSlash(relPath)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", relPath, err)
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), true, nil
}
