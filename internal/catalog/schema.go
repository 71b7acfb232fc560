package catalog

// schema is the catalog's authoritative layout: files, archives,
// their self/cross references with cascade delete, and an FTS5
// external-content table over (virtual_path, original_name) kept in
// sync with files via triggers.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS archives (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	hash               TEXT NOT NULL UNIQUE,
	virtual_path       TEXT NOT NULL,
	original_name      TEXT NOT NULL,
	size_bytes         INTEGER NOT NULL,
	mtime              INTEGER NOT NULL,
	parent_archive_id  INTEGER REFERENCES archives(id) ON DELETE CASCADE,
	depth_level        INTEGER NOT NULL,
	archive_type       TEXT NOT NULL,
	extraction_status  TEXT NOT NULL,
	created_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_archives_hash ON archives(hash);
CREATE INDEX IF NOT EXISTS idx_archives_parent ON archives(parent_archive_id);
CREATE INDEX IF NOT EXISTS idx_archives_depth ON archives(depth_level);

CREATE TABLE IF NOT EXISTS files (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	hash               TEXT NOT NULL UNIQUE,
	virtual_path       TEXT NOT NULL,
	original_name      TEXT NOT NULL,
	size_bytes         INTEGER NOT NULL,
	mtime              INTEGER NOT NULL,
	mime_type          TEXT NOT NULL DEFAULT '',
	parent_archive_id  INTEGER REFERENCES archives(id) ON DELETE CASCADE,
	depth_level        INTEGER NOT NULL,
	created_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_hash ON files(hash);
CREATE INDEX IF NOT EXISTS idx_files_virtual_path ON files(virtual_path);
CREATE INDEX IF NOT EXISTS idx_files_parent ON files(parent_archive_id);
CREATE INDEX IF NOT EXISTS idx_files_depth ON files(depth_level);

CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
	virtual_path, original_name, content='files', content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS files_ai AFTER INSERT ON files BEGIN
	INSERT INTO files_fts(rowid, virtual_path, original_name)
	VALUES (new.id, new.virtual_path, new.original_name);
END;

CREATE TRIGGER IF NOT EXISTS files_ad AFTER DELETE ON files BEGIN
	INSERT INTO files_fts(files_fts, rowid, virtual_path, original_name)
	VALUES ('delete', old.id, old.virtual_path, old.original_name);
END;

CREATE TRIGGER IF NOT EXISTS files_au AFTER UPDATE ON files BEGIN
	INSERT INTO files_fts(files_fts, rowid, virtual_path, original_name)
	VALUES ('delete', old.id, old.virtual_path, old.original_name);
	INSERT INTO files_fts(rowid, virtual_path, original_name)
	VALUES (new.id, new.virtual_path, new.original_name);
END;
`
