package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CloneTree replicates src under dst, hardlinking regular files where the
// filesystem allows and copying otherwise. Cargo never rewrites dependency
// artifacts in place (it writes new files), so hardlinks give tasks a cheap
// private view of the shared cache without risking writes back into it.
func CloneTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(out, info.Mode().Perm())
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		if err := os.Link(path, out); err == nil {
			return nil
		}
		return CopyFile(path, out, info.Mode().Perm())
	})
}

// CopyFile copies src to dst with the given permissions.
func CopyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
