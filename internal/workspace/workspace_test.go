package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logscan/internal/types"
)

func TestOpenCreatesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")
	ws, err := Open("w1", root)
	require.NoError(t, err)
	defer ws.Close()

	_, err = os.Stat(filepath.Join(root, "metadata.db"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "objects"))
	require.NoError(t, err)
}

func TestDeleteRemovesEverything(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")
	ws, err := Open("w1", root)
	require.NoError(t, err)

	res, err := ws.CAS.Write(strings.NewReader("some log content\n"))
	require.NoError(t, err)
	_, err = ws.Catalog.InsertFile(context.Background(), types.FileRecord{
		Hash: res.Hash, VirtualPath: "app.log", OriginalName: "app.log",
		SizeBytes: res.Size, MTime: 1, DepthLevel: 0,
	})
	require.NoError(t, err)

	require.NoError(t, ws.Delete())

	// After delete, no record or blob remains.
	_, err = os.Stat(root)
	require.True(t, os.IsNotExist(err))
}

func TestStatCountsFiles(t *testing.T) {
	ws, err := Open("w1", filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	defer ws.Close()

	res, err := ws.CAS.Write(strings.NewReader("twelve bytes"))
	require.NoError(t, err)
	_, err = ws.Catalog.InsertFile(context.Background(), types.FileRecord{
		Hash: res.Hash, VirtualPath: "a.log", OriginalName: "a.log",
		SizeBytes: res.Size, MTime: 1, DepthLevel: 0,
	})
	require.NoError(t, err)

	info, err := ws.Stat()
	require.NoError(t, err)
	require.Equal(t, "w1", info.ID)
	require.Equal(t, 1, info.FileCount)
	require.Equal(t, int64(12), info.TotalSize)
}
