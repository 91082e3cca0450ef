package migration

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// MigrationFile is a newly created up/down pair
type MigrationFile struct {
	Version  uint
	UpPath   string
	DownPath string
}

// CreateMigration writes an empty up/down pair into dir, numbered one past the
// highest existing version.
func CreateMigration(dir, name string) (*MigrationFile, error) {
	slug := sanitizeName(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	existing, err := ListMigrations(dir)
	if err != nil {
		return nil, err
	}
	var next uint = 1
	for _, base := range existing {
		if v, ok := versionOf(base); ok && v >= next {
			next = v + 1
		}
	}

	base := fmt.Sprintf("%06d_%s", next, slug)
	mf := &MigrationFile{
		Version:  next,
		UpPath:   filepath.Join(dir, base+upSuffix),
		DownPath: filepath.Join(dir, base+downSuffix),
	}
	if err := os.WriteFile(mf.UpPath, []byte("-- "+name+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write up migration: %w", err)
	}
	if err := os.WriteFile(mf.DownPath, []byte("-- rollback: "+name+"\n"), 0o644); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, fmt.Errorf("failed to write down migration: %w", err)
	}
	return mf, nil
}

// ListMigrations returns the base names of the up migrations in dir, in version order.
// A missing directory yields an empty list.
func ListMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	return baseNames(entries), nil
}

func baseNames(entries []fs.DirEntry) []string {
	names := make([]string, 0, len(entries)/2)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), upSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), upSuffix))
	}
	return names
}

func versionOf(base string) (uint, bool) {
	prefix, _, _ := strings.Cut(base, "_")
	v, err := strconv.ParseUint(prefix, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}

// sanitizeName lowercases name and joins its words with single underscores
func sanitizeName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			pendingSep = true
		}
	}
	return b.String()
}
