// Package cas implements the content-addressable blob store.
//
// Blobs live at <root>/objects/<sha256[0:2]>/<sha256[2:]>. Writes stream
// through a SHA-256 hasher into a temp file, then commit with a rename so
// a reader never observes a partially written blob. Concurrent writes of
// the same content collapse: the first writer to reach the rename wins,
// every later one with the same hash discovers the object already exists
// and discards its temp file, a zero-disk-write dedup hit. A per-hash
// mutex pool makes the existence check and rename atomic with respect
// to other writers of that hash without serializing writes to distinct
// hashes.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	cerr "github.com/standardbeagle/logscan/internal/errors"
	"github.com/standardbeagle/logscan/internal/types"
)

const bufSize = 8 * 1024 // constant-memory streaming target

// Store is a content-addressable blob store rooted at a directory.
type Store struct {
	root  string
	locks sync.Map // map[types.Hash]*hashLock
}

type hashLock struct {
	mu   sync.Mutex
	refs int32
}

// Open creates (if needed) and returns a Store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "objects"), 0o750); err != nil {
		return nil, cerr.Wrap(cerr.CodeStorageError, "cas.Open", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeStorageError, "cas.Open", dir, err)
	}
	return &Store{root: abs}, nil
}

// Result describes the outcome of a Store.Write.
type Result struct {
	Hash  types.Hash
	Size  int64
	IsNew bool // false => deduplicated, no bytes written to disk
}

// ComputeHash is the pure hashing primitive behind blob identity.
func ComputeHash(b []byte) types.Hash {
	sum := sha256.Sum256(b)
	return types.Hash(hex.EncodeToString(sum[:]))
}

// Write streams r once, computing its SHA-256 incrementally, and stores
// it under that hash unless an identical blob already exists.
func (s *Store) Write(r io.Reader) (Result, error) {
	tmpDir := filepath.Join(s.root, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o750); err != nil {
		return Result{}, cerr.Wrap(cerr.CodeStorageError, "cas.Write", "mkdir tmp", err)
	}
	tmp, err := os.CreateTemp(tmpDir, "blob-*")
	if err != nil {
		return Result{}, cerr.Wrap(cerr.CodeStorageError, "cas.Write", "create tmp", err)
	}
	tmpPath := tmp.Name()

	hasher := sha256.New()
	buf := make([]byte, bufSize)
	n, copyErr := io.CopyBuffer(tmp, io.TeeReader(r, hasher), buf)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return Result{}, cerr.Wrap(cerr.CodeStorageError, "cas.Write", "stream", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return Result{}, cerr.Wrap(cerr.CodeStorageError, "cas.Write", "flush", closeErr)
	}

	hash := types.Hash(hex.EncodeToString(hasher.Sum(nil)))
	blobPath := s.blobPath(hash)

	unlock := s.lockHash(hash)
	defer unlock()

	if _, statErr := os.Stat(blobPath); statErr == nil {
		os.Remove(tmpPath)
		return Result{Hash: hash, Size: n, IsNew: false}, nil
	} else if !os.IsNotExist(statErr) {
		os.Remove(tmpPath)
		return Result{}, cerr.Wrap(cerr.CodeStorageError, "cas.Write", "stat", statErr)
	}

	if err := os.MkdirAll(filepath.Dir(blobPath), 0o750); err != nil {
		os.Remove(tmpPath)
		return Result{}, cerr.Wrap(cerr.CodeStorageError, "cas.Write", "mkdir blob dir", err)
	}
	if err := os.Rename(tmpPath, blobPath); err != nil {
		os.Remove(tmpPath)
		return Result{}, cerr.Wrap(cerr.CodeStorageError, "cas.Write", "rename", err)
	}
	os.Chmod(blobPath, 0o440)

	return Result{Hash: hash, Size: n, IsNew: true}, nil
}

// Exists is an O(1) filesystem check.
func (s *Store) Exists(hash types.Hash) bool {
	if !hash.Valid() {
		return false
	}
	_, err := os.Stat(s.blobPath(hash))
	return err == nil
}

// Read opens a blob for streaming. The caller must Close the result.
// No integrity check is performed — use VerifyIntegrity explicitly when
// that is required.
func (s *Store) Read(hash types.Hash) (io.ReadCloser, error) {
	if !hash.Valid() {
		return nil, cerr.New(cerr.CodeNotFound, "cas.Read", string(hash))
	}
	f, err := os.Open(s.blobPath(hash))
	if os.IsNotExist(err) {
		return nil, cerr.Wrap(cerr.CodeNotFound, "cas.Read", string(hash), err)
	}
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeStorageError, "cas.Read", string(hash), err)
	}
	return f, nil
}

// Size returns the stored blob's length without reading its contents.
func (s *Store) Size(hash types.Hash) (int64, error) {
	if !hash.Valid() {
		return 0, cerr.New(cerr.CodeNotFound, "cas.Size", string(hash))
	}
	info, err := os.Stat(s.blobPath(hash))
	if os.IsNotExist(err) {
		return 0, cerr.Wrap(cerr.CodeNotFound, "cas.Size", string(hash), err)
	}
	if err != nil {
		return 0, cerr.Wrap(cerr.CodeStorageError, "cas.Size", string(hash), err)
	}
	return info.Size(), nil
}

// VerifyIntegrity re-hashes the stored blob and confirms it matches its
// own name, surfacing IntegrityError on mismatch.
func (s *Store) VerifyIntegrity(hash types.Hash) error {
	r, err := s.Read(hash)
	if err != nil {
		return err
	}
	defer r.Close()

	hasher := sha256.New()
	if _, err := io.CopyBuffer(hasher, r, make([]byte, bufSize)); err != nil {
		return cerr.Wrap(cerr.CodeStorageError, "cas.VerifyIntegrity", string(hash), err)
	}
	actual := hex.EncodeToString(hasher.Sum(nil))
	if actual != string(hash) {
		return cerr.New(cerr.CodeIntegrityError, "cas.VerifyIntegrity", string(hash))
	}
	return nil
}

// Root reports the CAS's storage root, for the workspace package to
// delete wholesale on DeleteWorkspace.
func (s *Store) Root() string { return s.root }

func (s *Store) blobPath(hash types.Hash) string {
	dir, rest := hash.ShardPath()
	return filepath.Join(s.root, "objects", dir, rest)
}

func (s *Store) lockHash(hash types.Hash) (unlock func()) {
	v, _ := s.locks.LoadOrStore(hash, &hashLock{})
	l := v.(*hashLock)
	atomic.AddInt32(&l.refs, 1)
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		if atomic.AddInt32(&l.refs, -1) == 0 {
			s.locks.CompareAndDelete(hash, l)
		}
	}
}
