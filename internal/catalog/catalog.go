// Package catalog is the metadata side of a workspace: a
// SQLite-backed relational store for files and archives, with an FTS5
// path index kept in sync by triggers. Writes are serialized through a
// single-connection write handle; reads use a separate, multi-connection
// read pool — one writer, many readers.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	cerr "github.com/standardbeagle/logscan/internal/errors"
	"github.com/standardbeagle/logscan/internal/types"
)

// Catalog is the metadata store for one workspace.
type Catalog struct {
	write *sql.DB
	read  *sql.DB
}

// Open creates or attaches to the catalog database at path, applying the
// schema idempotently.
func Open(path string) (*Catalog, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"

	write, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeStorageError, "catalog.Open", path, err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", dsn)
	if err != nil {
		write.Close()
		return nil, cerr.Wrap(cerr.CodeStorageError, "catalog.Open", path, err)
	}
	read.SetMaxOpenConns(4)

	if _, err := write.Exec(schema); err != nil {
		write.Close()
		read.Close()
		return nil, cerr.Wrap(cerr.CodeStorageError, "catalog.Open", "apply schema", err)
	}

	return &Catalog{write: write, read: read}, nil
}

// Close releases both connection pools.
func (c *Catalog) Close() error {
	werr := c.write.Close()
	rerr := c.read.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// execer is satisfied by both *sql.DB and *sql.Tx, so the Insert*/Update*
// methods below can run either directly against the write handle or
// inside a caller-managed transaction (WithTx) without duplicating their
// SQL.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// WithTx runs fn against a transactional handle, committing on success
// and rolling back on error or panic. Pass the *Queries it receives to
// InsertFile/InsertArchive/UpdateArchiveStatus to register every entry
// of one archive atomically.
func (c *Catalog) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	return c.Tx(ctx, func(tx *sql.Tx) error {
		return fn(&Queries{db: tx})
	})
}

// Queries is a thin handle over either the catalog's write connection or
// an in-flight transaction; InsertFile etc. are defined on it so the same
// code path serves both standalone calls and WithTx callbacks.
type Queries struct{ db execer }

// InsertFile implements insert-or-ignore-then-select semantics so that
// two concurrent inserts of the same blob resolve to a single row.
func (c *Catalog) InsertFile(ctx context.Context, rec types.FileRecord) (types.FileID, error) {
	return (&Queries{db: c.write}).InsertFile(ctx, rec)
}

// InsertArchive mirrors InsertFile for archive containers.
func (c *Catalog) InsertArchive(ctx context.Context, rec types.ArchiveRecord) (types.ArchiveID, error) {
	return (&Queries{db: c.write}).InsertArchive(ctx, rec)
}

// UpdateArchiveStatus enforces the status state machine:
// pending -> extracting -> {completed, failed}.
func (c *Catalog) UpdateArchiveStatus(ctx context.Context, id types.ArchiveID, next types.ExtractionStatus) error {
	return (&Queries{db: c.write}).UpdateArchiveStatus(ctx, id, next)
}

// InsertFile is the Queries-scoped implementation shared by Catalog.InsertFile
// and every WithTx callback.
func (q *Queries) InsertFile(ctx context.Context, rec types.FileRecord) (types.FileID, error) {
	if err := types.CheckDepthInvariant(rec.DepthLevel, rec.ParentArchiveID); err != nil {
		return 0, cerr.Wrap(cerr.CodeStorageError, "catalog.InsertFile", string(rec.Hash), err)
	}
	now := time.Now().Unix()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO files (hash, virtual_path, original_name, size_bytes, mtime, mime_type, parent_archive_id, depth_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING`,
		rec.Hash, rec.VirtualPath, rec.OriginalName, rec.SizeBytes, rec.MTime, rec.MimeType,
		nullableArchiveID(rec.ParentArchiveID), rec.DepthLevel, now)
	if err != nil {
		return 0, cerr.Wrap(cerr.CodeStorageError, "catalog.InsertFile", string(rec.Hash), err)
	}

	var id types.FileID
	err = q.db.QueryRowContext(ctx, `SELECT id FROM files WHERE hash = ?`, rec.Hash).Scan(&id)
	if err != nil {
		return 0, cerr.Wrap(cerr.CodeStorageError, "catalog.InsertFile", string(rec.Hash), err)
	}
	return id, nil
}

// InsertArchive is the Queries-scoped implementation shared by
// Catalog.InsertArchive and every WithTx callback.
func (q *Queries) InsertArchive(ctx context.Context, rec types.ArchiveRecord) (types.ArchiveID, error) {
	if err := types.CheckDepthInvariant(rec.DepthLevel, rec.ParentArchiveID); err != nil {
		return 0, cerr.Wrap(cerr.CodeStorageError, "catalog.InsertArchive", string(rec.Hash), err)
	}
	now := time.Now().Unix()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO archives (hash, virtual_path, original_name, size_bytes, mtime, parent_archive_id, depth_level, archive_type, extraction_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING`,
		rec.Hash, rec.VirtualPath, rec.OriginalName, rec.SizeBytes, rec.MTime,
		nullableArchiveID(rec.ParentArchiveID), rec.DepthLevel, string(rec.ArchiveType), string(rec.ExtractionStatus), now)
	if err != nil {
		return 0, cerr.Wrap(cerr.CodeStorageError, "catalog.InsertArchive", string(rec.Hash), err)
	}

	var id types.ArchiveID
	err = q.db.QueryRowContext(ctx, `SELECT id FROM archives WHERE hash = ?`, rec.Hash).Scan(&id)
	if err != nil {
		return 0, cerr.Wrap(cerr.CodeStorageError, "catalog.InsertArchive", string(rec.Hash), err)
	}
	return id, nil
}

// UpdateArchiveStatus is the Queries-scoped implementation shared by
// Catalog.UpdateArchiveStatus and every WithTx callback.
func (q *Queries) UpdateArchiveStatus(ctx context.Context, id types.ArchiveID, next types.ExtractionStatus) error {
	var current types.ExtractionStatus
	err := q.db.QueryRowContext(ctx, `SELECT extraction_status FROM archives WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return cerr.New(cerr.CodeNotFound, "catalog.UpdateArchiveStatus", fmt.Sprint(id))
	}
	if err != nil {
		return cerr.Wrap(cerr.CodeStorageError, "catalog.UpdateArchiveStatus", fmt.Sprint(id), err)
	}
	if !current.ValidTransition(next) {
		return cerr.New(cerr.CodeInternal, "catalog.UpdateArchiveStatus",
			fmt.Sprintf("invalid transition %s -> %s", current, next))
	}
	_, err = q.db.ExecContext(ctx, `UPDATE archives SET extraction_status = ? WHERE id = ?`, string(next), id)
	if err != nil {
		return cerr.Wrap(cerr.CodeStorageError, "catalog.UpdateArchiveStatus", fmt.Sprint(id), err)
	}
	return nil
}

// GetArchiveStatus returns the current extraction_status of one archive
// row. The ingest pipeline consults it after an insert-or-ignore to tell
// a fresh registration (pending) from a re-ingest of a known archive.
func (c *Catalog) GetArchiveStatus(ctx context.Context, id types.ArchiveID) (types.ExtractionStatus, error) {
	var status types.ExtractionStatus
	err := c.read.QueryRowContext(ctx, `SELECT extraction_status FROM archives WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", cerr.New(cerr.CodeNotFound, "catalog.GetArchiveStatus", fmt.Sprint(id))
	}
	if err != nil {
		return "", cerr.Wrap(cerr.CodeStorageError, "catalog.GetArchiveStatus", fmt.Sprint(id), err)
	}
	return status, nil
}

// ListAllArchives returns every archive row known to the workspace.
func (c *Catalog) ListAllArchives(ctx context.Context) ([]types.ArchiveRecord, error) {
	rows, err := c.read.QueryContext(ctx, `
		SELECT id, hash, virtual_path, original_name, size_bytes, mtime, parent_archive_id, depth_level, archive_type, extraction_status, created_at
		FROM archives ORDER BY virtual_path`)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeStorageError, "catalog.ListAllArchives", "", err)
	}
	defer rows.Close()

	var out []types.ArchiveRecord
	for rows.Next() {
		var rec types.ArchiveRecord
		var parent sql.NullInt64
		var atype, status string
		if err := rows.Scan(&rec.ID, &rec.Hash, &rec.VirtualPath, &rec.OriginalName, &rec.SizeBytes,
			&rec.MTime, &parent, &rec.DepthLevel, &atype, &status, &rec.CreatedAt); err != nil {
			return nil, cerr.Wrap(cerr.CodeStorageError, "catalog.ListAllArchives", "scan", err)
		}
		if parent.Valid {
			id := types.ArchiveID(parent.Int64)
			rec.ParentArchiveID = &id
		}
		rec.ArchiveType = types.ArchiveType(atype)
		rec.ExtractionStatus = types.ExtractionStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetFileByVirtualPath returns the file row at path, if any.
func (c *Catalog) GetFileByVirtualPath(ctx context.Context, path string) (*types.FileRecord, error) {
	row := c.read.QueryRowContext(ctx, fileColumns(`SELECT %s FROM files WHERE virtual_path = ?`), path)
	rec, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeStorageError, "catalog.GetFileByVirtualPath", path, err)
	}
	return rec, nil
}

// ListArchiveChildren returns every file row whose parent_archive_id is archiveID.
func (c *Catalog) ListArchiveChildren(ctx context.Context, archiveID types.ArchiveID) ([]types.FileRecord, error) {
	rows, err := c.read.QueryContext(ctx, fileColumns(`SELECT %s FROM files WHERE parent_archive_id = ? ORDER BY id`), archiveID)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeStorageError, "catalog.ListArchiveChildren", fmt.Sprint(archiveID), err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

// ListAllFiles returns every file row known to the workspace.
func (c *Catalog) ListAllFiles(ctx context.Context) ([]types.FileRecord, error) {
	rows, err := c.read.QueryContext(ctx, fileColumns(`SELECT %s FROM files ORDER BY virtual_path`))
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeStorageError, "catalog.ListAllFiles", "", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

// SearchByPath runs an FTS5 MATCH query against (virtual_path, original_name).
func (c *Catalog) SearchByPath(ctx context.Context, ftsQuery string) ([]types.FileRecord, error) {
	// files_fts also has virtual_path and original_name columns, so the
	// selected columns are qualified with the files table.
	q := `
		SELECT files.id, files.hash, files.virtual_path, files.original_name, files.size_bytes,
		       files.mtime, files.mime_type, files.parent_archive_id, files.depth_level, files.created_at
		FROM files
		JOIN files_fts ON files_fts.rowid = files.id
		WHERE files_fts MATCH ?
		ORDER BY rank`
	rows, err := c.read.QueryContext(ctx, q, ftsQuery)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeStorageError, "catalog.SearchByPath", ftsQuery, err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

// Tx runs fn inside a single write transaction, rolling back on error or
// panic. Used by the ingest pipeline to register every entry of one
// archive atomically.
func (c *Catalog) Tx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := c.write.BeginTx(ctx, nil)
	if err != nil {
		return cerr.Wrap(cerr.CodeStorageError, "catalog.Tx", "", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return cerr.Wrap(cerr.CodeStorageError, "catalog.Tx", "commit", err)
	}
	return nil
}

const fileCols = "id, hash, virtual_path, original_name, size_bytes, mtime, mime_type, parent_archive_id, depth_level, created_at"

func fileColumns(tmpl string) string { return fmt.Sprintf(tmpl, fileCols) }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*types.FileRecord, error) {
	var rec types.FileRecord
	var parent sql.NullInt64
	if err := row.Scan(&rec.ID, &rec.Hash, &rec.VirtualPath, &rec.OriginalName, &rec.SizeBytes,
		&rec.MTime, &rec.MimeType, &parent, &rec.DepthLevel, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if parent.Valid {
		id := types.ArchiveID(parent.Int64)
		rec.ParentArchiveID = &id
	}
	return &rec, nil
}

func scanFiles(rows *sql.Rows) ([]types.FileRecord, error) {
	var out []types.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func nullableArchiveID(id *types.ArchiveID) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}
