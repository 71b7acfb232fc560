// Package workspace wires the CAS (internal/cas) and the metadata catalog
// (internal/catalog) into a single named scope, the Workspace: its own CAS directory and its own catalog database, created
// and deleted atomically from the caller's point of view.
package workspace

import (
	"context"
	"os"
	"path/filepath"

	"github.com/standardbeagle/logscan/internal/cas"
	"github.com/standardbeagle/logscan/internal/catalog"
	"github.com/standardbeagle/logscan/internal/config"
	cerr "github.com/standardbeagle/logscan/internal/errors"
)

// Workspace bundles one workspace's storage and metadata handles, laid
// out on disk as:
//
//	<workspace_root>/objects/<hash[0:2]>/<hash[2:]>  (see internal/cas)
//	<workspace_root>/metadata.db
type Workspace struct {
	ID      string
	Root    string
	Config  config.Config
	CAS     *cas.Store
	Catalog *catalog.Catalog
}

// Open creates (if needed) and attaches to the workspace rooted at root.
// The identifier is opaque to the core; callers typically use
// the same string as the final path segment of root.
func Open(id, root string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, cerr.Wrap(cerr.CodeStorageError, "workspace.Open", root, err)
	}

	cfg := config.Default(root)
	if err := config.LoadKDL(&cfg, root); err != nil {
		return nil, cerr.Wrap(cerr.CodeStorageError, "workspace.Open", "load config", err)
	}

	store, err := cas.Open(root)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(filepath.Join(root, "metadata.db"))
	if err != nil {
		return nil, err
	}
	return &Workspace{ID: id, Root: root, Config: cfg, CAS: store, Catalog: cat}, nil
}

// Close releases the catalog's connection pools. The CAS has no handles
// to release; it operates directly on the filesystem per call.
func (w *Workspace) Close() error {
	return w.Catalog.Close()
}

// Delete removes every record and every blob belonging to w. The catalog is closed
// first so its connections release their file locks before the
// directory tree is removed.
func (w *Workspace) Delete() error {
	if err := w.Catalog.Close(); err != nil {
		return cerr.Wrap(cerr.CodeStorageError, "workspace.Delete", w.Root, err)
	}
	if err := os.RemoveAll(w.Root); err != nil {
		return cerr.Wrap(cerr.CodeStorageError, "workspace.Delete", w.Root, err)
	}
	return nil
}

// Info is the summary returned by the get_workspace_info operation.
type Info struct {
	ID        string
	FileCount int
	TotalSize int64
}

// Stat computes Info by scanning the catalog's files table. Cheap enough
// to recompute on demand; no running total is cached anywhere.
func (w *Workspace) Stat() (Info, error) {
	files, err := w.Catalog.ListAllFiles(context.Background())
	if err != nil {
		return Info{}, err
	}
	info := Info{ID: w.ID}
	for _, f := range files {
		info.FileCount++
		info.TotalSize += f.SizeBytes
	}
	return info, nil
}
