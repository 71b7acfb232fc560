// Package ingest glues extraction, storage, and cataloguing together: for
// each source, extract -> hash -> store in CAS -> register in catalog,
// recursing into nested archives up to the configured depth and
// enforcing the two-layer file-filter policy on everything it indexes.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/logscan/internal/archive"
	"github.com/standardbeagle/logscan/internal/catalog"
	"github.com/standardbeagle/logscan/internal/debug"
	cerr "github.com/standardbeagle/logscan/internal/errors"
	"github.com/standardbeagle/logscan/internal/types"
	"github.com/standardbeagle/logscan/internal/workspace"
)

// sniffWindow mirrors archive.sniffWindow; kept separate since ingest
// peeks entry heads for MIME/binary-guard purposes independently of
// archive format detection's own peek.
const sniffWindow = 512

// Progress is emitted on the channel passed to Pipeline.Import after
// every catalog commit.
type Progress struct {
	WorkspaceID        string
	ProcessedFiles     int
	TotalFilesEstimate int
	CurrentVirtualPath string
}

// FailedEntry records one entry or archive that could not be ingested.
// Per-entry and per-archive failures never abort the rest of the
// pipeline.
type FailedEntry struct {
	VirtualPath string
	Reason      string
}

// Report is the single summary surfaced to the caller of Import.
// Added and Deduplicated count content files only; archive containers are
// registered in the catalog but are bookkeeping, not indexed content.
type Report struct {
	Added          int
	Deduplicated   int
	Failed         []FailedEntry
	BombDetections int
	MaxDepthSeen   int
	Elapsed        time.Duration
}

// Pipeline is the C4 ingest glue over one open workspace.
type Pipeline struct {
	ws *workspace.Workspace

	mu        sync.Mutex
	report    Report
	processed int
}

// New constructs a Pipeline over an open workspace.
func New(ws *workspace.Workspace) *Pipeline { return &Pipeline{ws: ws} }

// Import implements the import_path operation. Directories are walked
// depth-first, each regular file becoming an independent source
// processed by its own errgroup worker, bounded by GOMAXPROCS.
func (p *Pipeline) Import(ctx context.Context, sourcePath string, progress chan<- Progress) (Report, error) {
	start := time.Now()
	p.mu.Lock()
	p.report = Report{}
	p.processed = 0
	p.mu.Unlock()

	info, err := os.Stat(sourcePath)
	if err != nil {
		return Report{}, cerr.Wrap(cerr.CodeStorageError, "ingest.Import", sourcePath, err)
	}

	var sources []string
	var selectionRoot string
	if info.IsDir() {
		selectionRoot = sourcePath
		walkErr := filepath.WalkDir(sourcePath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				sources = append(sources, path)
			}
			return nil
		})
		if walkErr != nil {
			return Report{}, cerr.Wrap(cerr.CodeStorageError, "ingest.Import", sourcePath, walkErr)
		}
	} else {
		selectionRoot = filepath.Dir(sourcePath)
		sources = []string{sourcePath}
	}

	total := len(sources)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, src := range sources {
		src := src
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			p.importSource(gctx, src, selectionRoot, total, progress)
			return nil
		})
	}

	if werr := g.Wait(); werr != nil {
		return p.snapshot(start), cerr.Wrap(cerr.CodeCancelled, "ingest.Import", sourcePath, werr)
	}
	return p.snapshot(start), nil
}

func (p *Pipeline) importSource(ctx context.Context, path, selectionRoot string, total int, progress chan<- Progress) {
	f, err := os.Open(path)
	if err != nil {
		p.recordFailure(path, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		p.recordFailure(path, err)
		return
	}

	name := filepath.Base(path)
	vpath := relVirtualPath(selectionRoot, path)
	guard := archive.NewGuard(p.ws.Config.Limits)
	debug.Printf("ingest: source %s", vpath)

	p.ingestOne(ctx, f, name, vpath, info.ModTime().Unix(), nil, 0, guard, total, progress)
}

// ingestOne classifies one top-level source as either an ordinary file
// or a recursable archive and registers it accordingly. depth is the
// candidate's own depth_level, not its parent's.
func (p *Pipeline) ingestOne(ctx context.Context, r io.Reader, name, vpath string, mtime int64, parent *types.ArchiveID, depth int, guard *archive.Guard, total int, progress chan<- Progress) {
	br := bufio.NewReaderSize(r, sniffWindow)
	head, _ := br.Peek(sniffWindow)

	limits := p.ws.Config.Limits
	detected, isArchiveFormat := archive.Detect(name, head)
	eligible := isArchiveFormat && depth < limits.MaxExtractionDepth

	if !eligible {
		if !isArchiveFormat {
			mimeType := DetectMIME(name, head)
			if !BinaryGuard(head, mimeType) {
				io.Copy(io.Discard, br)
				return
			}
			if !AllowEntry(p.ws.Config.Filter, name) {
				io.Copy(io.Discard, br)
				return
			}
		}
		mimeType := DetectMIME(name, head)
		res, err := p.ws.CAS.Write(br)
		if err != nil {
			p.recordFailure(vpath, err)
			return
		}
		if _, err := p.ws.Catalog.InsertFile(ctx, types.FileRecord{
			Hash: res.Hash, VirtualPath: vpath, OriginalName: name, SizeBytes: res.Size,
			MTime: mtime, MimeType: mimeType, ParentArchiveID: parent, DepthLevel: depth,
		}); err != nil {
			p.recordFailure(vpath, err)
			return
		}
		p.recordStored(res.IsNew, depth)
		p.emitProgress(ctx, vpath, total, progress)
		return
	}

	res, err := p.ws.CAS.Write(br)
	if err != nil {
		p.recordFailure(vpath, err)
		return
	}
	archiveID, err := p.ws.Catalog.InsertArchive(ctx, types.ArchiveRecord{
		Hash: res.Hash, VirtualPath: vpath, OriginalName: name, SizeBytes: res.Size,
		MTime: mtime, ParentArchiveID: parent, DepthLevel: depth,
		ArchiveType: detected.Type, ExtractionStatus: types.StatusPending,
	})
	if err != nil {
		p.recordFailure(vpath, err)
		return
	}
	p.recordDepth(depth)

	recursable := detected.Type != types.ArchiveRar && detected.Type != types.Archive7z
	p.runExtraction(ctx, archiveID, vpath, depth, res.Hash, res.Size, name, recursable, guard, total, progress)
	p.emitProgress(ctx, vpath, total, progress)
}

// runExtraction drives one registered archive through its status
// transitions around extractChildren. Re-ingest of an archive already in
// a terminal state (completed or failed) re-scans its entries — that is
// what makes re-ingest idempotent and lets the report count dedup hits —
// but leaves the recorded status alone, since pending -> extracting ->
// {completed, failed} is the only legal transition chain.
func (p *Pipeline) runExtraction(ctx context.Context, archiveID types.ArchiveID, vpath string, depth int, hash types.Hash, size int64, name string, recursable bool, guard *archive.Guard, total int, progress chan<- Progress) {
	status, err := p.ws.Catalog.GetArchiveStatus(ctx, archiveID)
	if err != nil {
		p.recordFailure(vpath, err)
		return
	}
	terminal := status == types.StatusCompleted || status == types.StatusFailed

	if status == types.StatusPending {
		if err := p.ws.Catalog.UpdateArchiveStatus(ctx, archiveID, types.StatusExtracting); err != nil {
			p.recordFailure(vpath, err)
			return
		}
	}

	if !recursable {
		if !terminal {
			p.ws.Catalog.UpdateArchiveStatus(ctx, archiveID, types.StatusFailed)
		}
		p.recordFailure(vpath, cerr.New(cerr.CodeUnsupportedFormat, "ingest.runExtraction", name))
		return
	}

	failed := p.extractChildren(ctx, archiveID, vpath, depth, hash, size, name, guard, total, progress)
	if !terminal {
		final := types.StatusCompleted
		if failed {
			final = types.StatusFailed
		}
		p.ws.Catalog.UpdateArchiveStatus(ctx, archiveID, final)
	}
}

// childRow is one direct entry of an archive, resolved (CAS-stored and
// classified) but not yet committed to the catalog; extractChildren
// collects these so an entire archive's direct children can be written
// in a single transaction.
type childRow struct {
	vpath     string
	childName string
	isArchive bool
	isNew     bool
	file      types.FileRecord
	arch      types.ArchiveRecord
	recurse   bool
	hash      types.Hash
	size      int64
}

// extractChildren reopens the archive stored at hash, enumerates its
// direct entries, stores each to CAS, and commits all their catalog rows
// in one transaction. It returns true if the archive should be marked
// failed (a corrupt header, a bomb, or a catalog write error); a bomb
// mid-scan leaves no child rows behind at all.
func (p *Pipeline) extractChildren(ctx context.Context, archiveID types.ArchiveID, archiveVPath string, archiveDepth int, hash types.Hash, size int64, name string, guard *archive.Guard, total int, progress chan<- Progress) bool {
	rc, err := p.ws.CAS.Read(hash)
	if err != nil {
		p.recordFailure(archiveVPath, err)
		return true
	}
	f, ok := rc.(*os.File)
	if !ok {
		rc.Close()
		p.recordFailure(archiveVPath, cerr.New(cerr.CodeInternal, "ingest.extractChildren", "cas read did not return a random-access handle"))
		return true
	}
	defer f.Close()

	ext, _, err := archive.Open(f, f, size, name, guard, p.ws.Config.Limits)
	if err != nil {
		p.recordFailure(archiveVPath, err)
		return true
	}

	limits := p.ws.Config.Limits
	childDepth := archiveDepth + 1
	var rows []childRow

	for {
		if ctx.Err() != nil {
			return true
		}
		entry, err := ext.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if cerr.CodeOf(err) == cerr.CodeBombDetected {
				p.mu.Lock()
				p.report.BombDetections++
				p.mu.Unlock()
			}
			p.recordFailure(archiveVPath, err)
			return true
		}
		if entry.IsDirectory {
			continue
		}

		childName := pathBase(entry.VirtualPath)
		childVPath := archiveVPath + "/" + entry.VirtualPath

		src, err := entry.Open()
		if err != nil {
			p.recordFailure(childVPath, err)
			continue
		}

		br := bufio.NewReaderSize(src, sniffWindow)
		head, _ := br.Peek(sniffWindow)
		detected, isArchiveFormat := archive.Detect(childName, head)
		// A nested archive is only recursed into while its own children
		// would still sit within max_extraction_depth; at the cap it is
		// registered as an opaque file instead.
		eligible := isArchiveFormat && childDepth < limits.MaxExtractionDepth

		if !isArchiveFormat {
			mimeType := DetectMIME(childName, head)
			if !BinaryGuard(head, mimeType) || !AllowEntry(p.ws.Config.Filter, childName) {
				io.Copy(io.Discard, br)
				src.Close()
				continue
			}
		}

		res, err := p.ws.CAS.Write(br)
		src.Close()
		if err != nil {
			// CAS wraps the reader's error in a StorageError, so look
			// through the chain for a bomb tripped while streaming.
			if errors.Is(err, cerr.New(cerr.CodeBombDetected, "", "")) {
				p.mu.Lock()
				p.report.BombDetections++
				p.mu.Unlock()
				p.recordFailure(childVPath, err)
				return true
			}
			p.recordFailure(childVPath, err)
			continue
		}

		if eligible {
			rows = append(rows, childRow{
				vpath: childVPath, childName: childName, isArchive: true, isNew: res.IsNew,
				hash: res.Hash, size: res.Size,
				arch: types.ArchiveRecord{
					Hash: res.Hash, VirtualPath: childVPath, OriginalName: childName,
					SizeBytes: res.Size, MTime: entry.MTime, ParentArchiveID: &archiveID,
					DepthLevel: childDepth, ArchiveType: detected.Type, ExtractionStatus: types.StatusPending,
				},
				recurse: detected.Type != types.ArchiveRar && detected.Type != types.Archive7z,
			})
		} else {
			mimeType := DetectMIME(childName, head)
			rows = append(rows, childRow{
				vpath: childVPath, childName: childName, isArchive: false, isNew: res.IsNew,
				hash: res.Hash, size: res.Size,
				file: types.FileRecord{
					Hash: res.Hash, VirtualPath: childVPath, OriginalName: childName,
					SizeBytes: res.Size, MTime: entry.MTime, MimeType: mimeType,
					ParentArchiveID: &archiveID, DepthLevel: childDepth,
				},
			})
		}
	}

	if len(rows) == 0 {
		return false
	}

	ids := make([]types.ArchiveID, len(rows))
	txErr := p.ws.Catalog.WithTx(ctx, func(q *catalog.Queries) error {
		for i, row := range rows {
			if row.isArchive {
				id, err := q.InsertArchive(ctx, row.arch)
				if err != nil {
					return err
				}
				ids[i] = id
			} else {
				if _, err := q.InsertFile(ctx, row.file); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if txErr != nil {
		p.recordFailure(archiveVPath, txErr)
		return true
	}

	for i, row := range rows {
		if !row.isArchive {
			p.recordStored(row.isNew, childDepth)
			p.emitProgress(ctx, row.vpath, total, progress)
			continue
		}
		p.recordDepth(childDepth)
		p.runExtraction(ctx, ids[i], row.vpath, childDepth, row.hash, row.size, row.childName, row.recurse, guard, total, progress)
		p.emitProgress(ctx, row.vpath, total, progress)
	}
	return false
}

// recordStored counts one content file toward Added or Deduplicated and
// folds its depth into MaxDepthSeen.
func (p *Pipeline) recordStored(isNew bool, depth int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if isNew {
		p.report.Added++
	} else {
		p.report.Deduplicated++
	}
	if depth > p.report.MaxDepthSeen {
		p.report.MaxDepthSeen = depth
	}
}

// recordDepth folds an archive container's depth into MaxDepthSeen
// without touching the Added/Deduplicated file counts.
func (p *Pipeline) recordDepth(depth int) {
	p.mu.Lock()
	if depth > p.report.MaxDepthSeen {
		p.report.MaxDepthSeen = depth
	}
	p.mu.Unlock()
}

func (p *Pipeline) recordFailure(vpath string, err error) {
	p.mu.Lock()
	p.report.Failed = append(p.report.Failed, FailedEntry{VirtualPath: vpath, Reason: err.Error()})
	p.mu.Unlock()
}

func (p *Pipeline) emitProgress(ctx context.Context, vpath string, total int, progress chan<- Progress) {
	p.mu.Lock()
	p.processed++
	processed := p.processed
	p.mu.Unlock()
	if progress == nil {
		return
	}
	select {
	case progress <- Progress{WorkspaceID: p.ws.ID, ProcessedFiles: processed, TotalFilesEstimate: total, CurrentVirtualPath: vpath}:
	case <-ctx.Done():
	}
}

func (p *Pipeline) snapshot(start time.Time) Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.report
	r.Elapsed = time.Since(start)
	return r
}

func relVirtualPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func pathBase(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
