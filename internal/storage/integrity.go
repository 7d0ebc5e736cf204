package storage

import (
	"context"
	"fmt"
	"os"
)

// IntegrityReport summarizes the checks IntegrityCheck runs. A report with
// no problems is not the same as a guarantee of correctness; it only means
// the cheap structural checks found nothing wrong.
type IntegrityReport struct {
	OrphanedRefFacts    int64
	OrphanedDefFacts    int64
	FilesMissingOnDisk  []string
	LexicalDocCountDrift int64
}

// Clean reports whether the report found no problems.
func (r IntegrityReport) Clean() bool {
	return r.OrphanedRefFacts == 0 && r.OrphanedDefFacts == 0 &&
		len(r.FilesMissingOnDisk) == 0 && r.LexicalDocCountDrift == 0
}

// IntegrityCheck runs cheap structural checks against the database: foreign
// key orphans that WAL/crash interaction can leave behind, files the index
// still references that no longer exist under repoRoot, and drift between
// the relational file count and lexicalDocCount (the Lexical Index's own
// document count, passed in by the caller so this package stays free of a
// dependency on internal/lexical). driftTolerance bounds how much drift is
// acceptable before it's reported, since a reconciliation in flight can
// leave the two transiently out of step.
func (s *Store) IntegrityCheck(ctx context.Context, repoRoot string, lexicalDocCount int64, driftTolerance int64) (IntegrityReport, error) {
	var report IntegrityReport

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ref_facts r
		WHERE r.target_def_uid IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM def_facts d WHERE d.def_uid = r.target_def_uid)
	`)
	if err := row.Scan(&report.OrphanedRefFacts); err != nil {
		return report, fmt.Errorf("count orphaned ref_facts: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM def_facts d
		WHERE NOT EXISTS (SELECT 1 FROM files f WHERE f.id = d.file_id)
	`)
	if err := row.Scan(&report.OrphanedDefFacts); err != nil {
		return report, fmt.Errorf("count orphaned def_facts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files`)
	if err != nil {
		return report, fmt.Errorf("list indexed files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return report, fmt.Errorf("scan indexed file path: %w", err)
		}
		if _, err := os.Stat(repoRoot + string(os.PathSeparator) + path); os.IsNotExist(err) {
			report.FilesMissingOnDisk = append(report.FilesMissingOnDisk, path)
		}
	}
	if err := rows.Err(); err != nil {
		return report, fmt.Errorf("iterate indexed files: %w", err)
	}

	var storedFileCount int64
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`)
	if err := row.Scan(&storedFileCount); err != nil {
		return report, fmt.Errorf("count files: %w", err)
	}
	drift := storedFileCount - lexicalDocCount
	if drift < 0 {
		drift = -drift
	}
	if drift > driftTolerance {
		report.LexicalDocCountDrift = drift
	}

	return report, nil
}

// Reinit wipes every table and re-runs Migrate, the recovery path taken
// when IntegrityCheck finds damage severe enough that incremental repair
// isn't worth attempting (spec favors a clean full reindex over trying to
// patch a database whose fact tables may be inconsistent with each other).
func (s *Store) Reinit(ctx context.Context) error {
	const dropDDL = `
		DROP TABLE IF EXISTS member_access_facts;
		DROP TABLE IF EXISTS type_member_facts;
		DROP TABLE IF EXISTS type_annotation_facts;
		DROP TABLE IF EXISTS scope_facts;
		DROP TABLE IF EXISTS import_facts;
		DROP TABLE IF EXISTS local_bind_facts;
		DROP TABLE IF EXISTS ref_facts;
		DROP TABLE IF EXISTS def_facts;
		DROP TABLE IF EXISTS context_markers;
		DROP TABLE IF EXISTS contexts;
		DROP TABLE IF EXISTS files;
		DROP TABLE IF EXISTS epochs;
		DROP TABLE IF EXISTS repo_state;
	`
	if _, err := s.db.ExecContext(ctx, dropDDL); err != nil {
		return fmt.Errorf("reinit: drop tables: %w", err)
	}
	return s.Migrate(ctx)
}
