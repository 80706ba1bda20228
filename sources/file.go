package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Entries never copied into the install path: VCS metadata, prior runtime
// environments, caches, and the orchestrator's own state.
var copyExclusions = map[string]bool{
	".git":        true,
	".github":     true,
	"venv":        true,
	"__pycache__": true,
	".env":        true,
	"provisioner": true,
	"deploy.db":   true,
}

// FileFetcher copies the application tree from a local directory.
type FileFetcher struct {
	srcDir string
	log    *slog.Logger
}

// NewFileFetcher creates a fetcher copying from srcDir.
func NewFileFetcher(srcDir string, log *slog.Logger) *FileFetcher {
	return &FileFetcher{srcDir: srcDir, log: log}
}

// Fetch copies the tree into dstDir, skipping excluded entries. Symlinks are
// not followed.
func (f *FileFetcher) Fetch(ctx context.Context, dstDir string) error {
	info, err := os.Stat(f.srcDir)
	if err != nil {
		return fmt.Errorf("source directory %s: %w", f.srcDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", f.srcDir)
	}

	copied := 0
	err = filepath.WalkDir(f.srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(f.srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if copyExclusions[d.Name()] || strings.HasSuffix(d.Name(), ".pyc") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		dst := filepath.Join(dstDir, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := copyFile(path, dst); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not copy application tree: %w", err)
	}

	f.log.Debug("Copied application tree", "src", f.srcDir, "files", copied)
	return nil
}

func (f *FileFetcher) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(f.srcDir))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
