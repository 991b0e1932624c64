// Package migrations declares the versioned schema scripts of each logical
// database. It performs no execution; database.DB.Migrate applies them.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
)

//go:embed main/*.sql chat/*.sql
var scripts embed.FS

// Logical database names.
const (
	DatabaseMain = "main"
	DatabaseChat = "chat"
)

var ErrUnknownDatabase = errors.New("unknown database")

// Kind is the direction of a migration. Only upward migrations exist.
type Kind int

const (
	Up Kind = iota + 1
)

func (k Kind) String() string {
	if k == Up {
		return "up"
	}
	return "unknown"
}

// Migration is one versioned script of a database.
type Migration struct {
	Version     int64
	Description string
	File        string // path inside FS()
	Kind        Kind
}

// SQL returns the script text.
func (m Migration) SQL() (string, error) {
	data, err := scripts.ReadFile(m.File)
	if err != nil {
		return "", fmt.Errorf("migration %d: %w", m.Version, err)
	}
	return string(data), nil
}

// Main returns the migrations of main.db in apply order.
func Main() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "creates the database schema.",
			File:        "main/00001_create_schema.sql",
			Kind:        Up,
		},
		{
			Version:     2,
			Description: "inserts default rubric.",
			File:        "main/00002_insert_default_rubric.sql",
			Kind:        Up,
		},
	}
}

// Chat returns the migrations of chat.db in apply order.
func Chat() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "creates conversation and message tables.",
			File:        "chat/00001_create_chat.sql",
			Kind:        Up,
		},
	}
}

// Databases lists the logical databases in the order they are opened.
func Databases() []string {
	return []string{DatabaseMain, DatabaseChat}
}

// For returns the migrations of the named database.
func For(name string) ([]Migration, error) {
	switch name {
	case DatabaseMain:
		return Main(), nil
	case DatabaseChat:
		return Chat(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDatabase, name)
	}
}

// FS returns the embedded scripts. Each database has its own directory.
func FS() fs.FS {
	return scripts
}

// Dir returns the directory of the list's scripts. All migrations of one
// list must share it.
func Dir(list []Migration) (string, error) {
	if len(list) == 0 {
		return "", errors.New("empty migration list")
	}
	dir := path.Dir(list[0].File)
	for _, m := range list[1:] {
		if d := path.Dir(m.File); d != dir {
			return "", fmt.Errorf("migration %d is in %q, expected %q", m.Version, d, dir)
		}
	}
	return dir, nil
}

// Validate checks that versions are positive and strictly ascending, that
// every script exists, and that the script file name carries the version
// the record declares. It also rejects scripts in the directory that the
// list does not declare, since the runner would apply them too.
func Validate(list []Migration) error {
	dir, err := Dir(list)
	if err != nil {
		return err
	}

	var prev int64
	declared := make(map[string]bool, len(list))
	for i, m := range list {
		if m.Version <= 0 {
			return fmt.Errorf("migration #%d: version must be positive, got %d", i, m.Version)
		}
		if m.Version <= prev {
			return fmt.Errorf("migration #%d: version %d is not greater than %d", i, m.Version, prev)
		}
		if m.Kind != Up {
			return fmt.Errorf("migration %d: unsupported kind %s", m.Version, m.Kind)
		}
		if strings.TrimSpace(m.Description) == "" {
			return fmt.Errorf("migration %d: description is required", m.Version)
		}
		if _, err := fs.Stat(scripts, m.File); err != nil {
			return fmt.Errorf("migration %d: %w", m.Version, err)
		}
		fileVersion, err := versionFromFile(m.File)
		if err != nil {
			return err
		}
		if fileVersion != m.Version {
			return fmt.Errorf("migration %d: file %s carries version %d", m.Version, m.File, fileVersion)
		}
		declared[m.File] = true
		prev = m.Version
	}

	entries, err := fs.ReadDir(scripts, dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}
	for _, e := range entries {
		p := path.Join(dir, e.Name())
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") && !declared[p] {
			return fmt.Errorf("script %s is not declared", p)
		}
	}
	return nil
}

// versionFromFile parses the numeric prefix of a goose script name.
func versionFromFile(file string) (int64, error) {
	base := path.Base(file)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, fmt.Errorf("script %s has no version prefix", file)
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("script %s: bad version prefix: %w", file, err)
	}
	return v, nil
}
