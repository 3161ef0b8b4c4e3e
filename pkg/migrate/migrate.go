package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/pixelmint/pixelmint-backend/pkg/logger"
)

const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source is a set of goose SQL migrations: a filesystem plus the directory
// inside it that holds the files.
type Source struct {
	FS  fs.FS
	Dir string
}

// EmbeddedSource returns the migrations compiled into the binary.
func EmbeddedSource() Source {
	return Source{FS: embedded, Dir: embeddedDir}
}

// DirSource reads migrations from a directory on disk.
func DirSource(dir string) Source {
	return Source{FS: os.DirFS(dir), Dir: "."}
}

func (s Source) String() string {
	if _, ok := s.FS.(embed.FS); ok {
		return "embedded:" + s.Dir
	}
	return s.Dir
}

// UseLogger routes goose's own progress output through logg.
func UseLogger(ctx context.Context, logg *logger.Logger) {
	if logg == nil {
		return
	}
	goose.SetLogger(gooseLogger{ctx: ctx, logg: logg})
}

type gooseLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.logg.Info(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.logg.Error(g.ctx, "goose.fatal", fmt.Errorf(format, v...))
	os.Exit(1)
}

// Run validates src and executes a goose command (up, down, status, ...)
// against db.
func Run(ctx context.Context, db *sql.DB, src Source, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if err := Validate(src); err != nil {
		return err
	}
	restore, err := prepare(src)
	if err != nil {
		return err
	}
	defer restore()

	if err := goose.RunContext(ctx, command, db, src.Dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, src Source, targetVersion string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	target, err := strconv.ParseInt(strings.TrimSpace(targetVersion), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	restore, err := prepare(src)
	if err != nil {
		return err
	}
	defer restore()

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, src.Dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, db, src.Dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

func prepare(src Source) (func(), error) {
	if src.FS == nil || src.Dir == "" {
		return nil, fmt.Errorf("migration source is required")
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetBaseFS(src.FS)
	return func() { goose.SetBaseFS(nil) }, nil
}
