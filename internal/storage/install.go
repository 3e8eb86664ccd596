package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrSanityCheck is returned by Install when the new database looks too
// small to replace the live one.
var ErrSanityCheck = errors.New("sanity check failed")

const archiveTimeLayout = "20060102-150405"

type InstallOptions struct {
	LivePath    string
	ArchiveDir  string // empty disables archiving
	ArchiveDays int    // archives older than this are pruned; zero keeps all
	MinSnippets int
	MinArticles int
	Now         time.Time
}

// Install replaces the live database with s. The current live database, if
// any, is moved to the archive first. s is closed whether or not the
// install succeeds.
func (s *Store) Install(ctx context.Context, opts InstallOptions) error {
	snippets, err := s.SnippetCount(ctx)
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to count snippets: %w", err)
	}
	articles, err := s.ArticleCount(ctx)
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to count articles: %w", err)
	}
	if snippets <= opts.MinSnippets || articles <= opts.MinArticles {
		s.Close()
		return fmt.Errorf("%w: %d snippets, %d articles", ErrSanityCheck, snippets, articles)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.Close()
		return fmt.Errorf("failed to checkpoint: %w", err)
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if _, err := os.Stat(opts.LivePath); err == nil && opts.ArchiveDir != "" {
		dst, err := archive(opts.LivePath, opts.ArchiveDir, opts.Now)
		if err != nil {
			return err
		}
		s.logger.Info("archived live database", zap.String("path", dst))
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(opts.LivePath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", opts.LivePath+suffix, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(opts.LivePath), 0o750); err != nil {
		return fmt.Errorf("failed to create live directory: %w", err)
	}
	if err := os.Rename(s.path, opts.LivePath); err != nil {
		return fmt.Errorf("failed to install %s: %w", s.path, err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(s.path + suffix)
	}

	s.logger.Info("installed database",
		zap.String("path", opts.LivePath),
		zap.Int("snippets", snippets),
		zap.Int("articles", articles),
	)

	if opts.ArchiveDir != "" && opts.ArchiveDays > 0 {
		pruned, err := PruneArchives(opts.ArchiveDir, opts.Now.Add(-time.Duration(opts.ArchiveDays)*24*time.Hour))
		if err != nil {
			return err
		}
		if len(pruned) > 0 {
			s.logger.Info("pruned archives", zap.Strings("paths", pruned))
		}
	}
	return nil
}

// archive copies path into dir under a timestamped name.
func archive(path, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dst := filepath.Join(dir, base+"-"+now.Format(archiveTimeLayout)+filepath.Ext(path))

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to copy archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

// PruneArchives deletes archives in dir stamped before cutoff and returns
// their paths. Files without an archive stamp are left alone.
func PruneArchives(dir string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	var pruned []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if len(name) < len(archiveTimeLayout) {
			continue
		}
		stamp, err := time.ParseInLocation(archiveTimeLayout, name[len(name)-len(archiveTimeLayout):], cutoff.Location())
		if err != nil || !stamp.Before(cutoff) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.Remove(p); err != nil {
			return pruned, fmt.Errorf("failed to remove archive %s: %w", p, err)
		}
		pruned = append(pruned, p)
	}
	return pruned, nil
}
