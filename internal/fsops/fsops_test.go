package fsops_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lexibench/batchlab/internal/fsops"
)

const (
	testDirectoryName    = "nested"
	testFileName         = "sample.txt"
	testFileContent      = "hello"
	testFilePermissions  = 0o644
	testDirPermissions   = 0o755
	hiddenSiblingDirName = "subdir"
)

func TestFilesystemsBehaveAlike(t *testing.T) {
	implementations := []struct {
		name string
		make func(t *testing.T) (fsops.FS, string)
	}{
		{
			name: "os",
			make: func(t *testing.T) (fsops.FS, string) {
				t.Helper()
				return fsops.NewOS(), t.TempDir()
			},
		},
		{
			name: "mem",
			make: func(t *testing.T) (fsops.FS, string) {
				t.Helper()
				return fsops.NewMem(), "/work"
			},
		},
	}

	for _, implementation := range implementations {
		t.Run(implementation.name, func(t *testing.T) {
			fileSystem, root := implementation.make(t)
			directory := filepath.Join(root, testDirectoryName)

			if err := fileSystem.MkdirAll(directory, testDirPermissions); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			filePath := filepath.Join(directory, testFileName)
			if err := fileSystem.WriteFile(filePath, []byte(testFileContent), testFilePermissions); err != nil {
				t.Fatalf("write: %v", err)
			}
			if !fsops.FileExists(fileSystem, filePath) {
				t.Fatalf("expected %s to exist", filePath)
			}

			content, readErr := fileSystem.ReadFile(filePath)
			if readErr != nil {
				t.Fatalf("read: %v", readErr)
			}
			if string(content) != testFileContent {
				t.Fatalf("expected content %q, got %q", testFileContent, string(content))
			}

			if err := fileSystem.MkdirAll(filepath.Join(directory, hiddenSiblingDirName), testDirPermissions); err != nil {
				t.Fatalf("mkdir sibling: %v", err)
			}
			names, listErr := fileSystem.ListDir(directory)
			if listErr != nil {
				t.Fatalf("list: %v", listErr)
			}
			if len(names) != 1 || names[0] != testFileName {
				t.Fatalf("expected directory listing [%s], got %v", testFileName, names)
			}

			if err := fileSystem.Remove(filePath); err != nil {
				t.Fatalf("remove: %v", err)
			}
			if fsops.FileExists(fileSystem, filePath) {
				t.Fatalf("expected %s to be gone", filePath)
			}
			if _, err := fileSystem.Stat(filePath); !os.IsNotExist(err) {
				t.Fatalf("expected not-exist error, got %v", err)
			}
		})
	}
}
