package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logscan/internal/types"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInsertFileIsIdempotentOnHash(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	rec := types.FileRecord{
		Hash:         types.Hash("a" + pad63()),
		VirtualPath:  "a.zip/hello.txt",
		OriginalName: "hello.txt",
		SizeBytes:    12,
		MTime:        1000,
		DepthLevel:   1,
	}
	parent := types.ArchiveID(1)
	rec.ParentArchiveID = &parent

	// register the parent archive first to satisfy the foreign key.
	_, err := c.InsertArchive(ctx, types.ArchiveRecord{
		Hash: types.Hash("b" + pad63()), VirtualPath: "a.zip", OriginalName: "a.zip",
		SizeBytes: 100, MTime: 1000, DepthLevel: 0,
		ArchiveType: types.ArchiveZip, ExtractionStatus: types.StatusPending,
	})
	require.NoError(t, err)

	id1, err := c.InsertFile(ctx, rec)
	require.NoError(t, err)
	id2, err := c.InsertFile(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	all, err := c.ListAllFiles(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "a.zip/hello.txt", all[0].VirtualPath)
}

func TestArchiveStatusTransitions(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	id, err := c.InsertArchive(ctx, types.ArchiveRecord{
		Hash: types.Hash("c" + pad63()), VirtualPath: "outer.zip", OriginalName: "outer.zip",
		SizeBytes: 10, MTime: 1, DepthLevel: 0,
		ArchiveType: types.ArchiveZip, ExtractionStatus: types.StatusPending,
	})
	require.NoError(t, err)

	require.NoError(t, c.UpdateArchiveStatus(ctx, id, types.StatusExtracting))
	require.NoError(t, c.UpdateArchiveStatus(ctx, id, types.StatusCompleted))
	require.Error(t, c.UpdateArchiveStatus(ctx, id, types.StatusExtracting))
}

func TestSearchByPath(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	_, err := c.InsertFile(ctx, types.FileRecord{
		Hash: types.Hash("d" + pad63()), VirtualPath: "logs/server/app.log", OriginalName: "app.log",
		SizeBytes: 1, MTime: 1, DepthLevel: 0,
	})
	require.NoError(t, err)

	found, err := c.SearchByPath(ctx, "app")
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func pad63() string {
	b := make([]byte, 63)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
