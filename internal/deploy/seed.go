package deploy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/homedock/internal/compose"
)

// SeedData copies the files shipped next to an app's compose file into its
// data directory so bind mounts find files instead of creating directories.
// Entries already in dataDir are left alone. Subdirectories are copied only
// when a bind mount source lies inside them. Only failure to create dataDir
// is returned; individual copy failures are logged.
func SeedData(logger zerolog.Logger, srcDir, dataDir string, bindSources []string) (int, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return 0, fmt.Errorf("create data directory %s: %w", dataDir, err)
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		logger.Warn().Err(err).Str("dir", srcDir).Msg("cannot read app source directory, nothing seeded")
		return 0, nil
	}

	copied := 0
	for _, entry := range entries {
		name := entry.Name()
		if slices.Contains(compose.ComposeFileNames, name) || strings.HasPrefix(name, ".git") {
			continue
		}
		src := filepath.Join(srcDir, name)
		dst := filepath.Join(dataDir, name)
		if _, err := os.Lstat(dst); err == nil {
			continue
		}

		switch {
		case entry.Type().IsRegular():
			if err := copyFile(src, dst); err != nil {
				logger.Warn().Err(err).Str("file", src).Msg("failed to seed file")
				continue
			}
			copied++
		case entry.IsDir() && mountedBelow(dst, bindSources):
			n, err := copyDir(logger, src, dst)
			copied += n
			if err != nil {
				logger.Warn().Err(err).Str("dir", src).Msg("failed to seed directory")
			}
		}
	}
	return copied, nil
}

// mountedBelow reports whether any bind source is dir or lies under it.
func mountedBelow(dir string, bindSources []string) bool {
	dir = filepath.Clean(dir)
	for _, src := range bindSources {
		src = filepath.Clean(src)
		if src == dir || strings.HasPrefix(src, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func copyDir(logger zerolog.Logger, src, dst string) (int, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, entry := range entries {
		s := filepath.Join(src, entry.Name())
		d := filepath.Join(dst, entry.Name())
		if _, err := os.Lstat(d); err == nil {
			continue
		}
		switch {
		case entry.IsDir():
			n, err := copyDir(logger, s, d)
			copied += n
			if err != nil {
				logger.Warn().Err(err).Str("dir", s).Msg("failed to seed directory")
			}
		case entry.Type().IsRegular():
			if err := copyFile(s, d); err != nil {
				logger.Warn().Err(err).Str("file", s).Msg("failed to seed file")
				continue
			}
			copied++
		}
	}
	return copied, nil
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
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
