package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"photo-vault/internal/logging"
	"photo-vault/internal/metrics"
)

// Default timeout for single-row database operations
const defaultTimeout = 5 * time.Second

// rowsPerStatement bounds a multi-row insert. Six parameters per row keeps
// each statement well under SQLite's bound-parameter limit.
const rowsPerStatement = 100

// Options tunes the connection pool. A nil *Options uses the defaults.
type Options struct {
	// MaxOpenConns caps open connections. Defaults to 8.
	MaxOpenConns int
	// BusyTimeout is how long a writer waits on a locked database.
	// Defaults to 5s.
	BusyTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	out := Options{MaxOpenConns: 8, BusyTimeout: 5 * time.Second}
	if o == nil {
		return out
	}
	if o.MaxOpenConns > 0 {
		out.MaxOpenConns = o.MaxOpenConns
	}
	if o.BusyTimeout > 0 {
		out.BusyTimeout = o.BusyTimeout
	}
	return out
}

// Database is the image registry.
type Database struct {
	db     *sql.DB
	dbPath string
}

// New opens (creating if needed) the registry at dbPath and provisions its
// schema. dbPath is the database FILE; its parent directory must exist and
// be writable.
func New(ctx context.Context, dbPath string, opts *Options) (*Database, error) {
	o := opts.withDefaults()
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_temp_store=MEMORY&_busy_timeout=%d&_txlock=immediate",
		dbPath, o.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(o.MaxOpenConns)
	db.SetMaxIdleConns(o.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	start := time.Now()
	err = d.initialize(ctx)
	recordQuery("initialize_schema", start, err)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		extension TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL,
		hash TEXT NOT NULL UNIQUE
	);

	CREATE INDEX IF NOT EXISTS idx_images_extension ON images(extension);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// migration adds one column to images when it is missing.
type migration struct {
	column string
	ddl    string
	// backfill runs once, right after the column is added.
	backfill string
}

var migrations = []migration{
	{
		column: "thumbnail_path",
		ddl:    `ALTER TABLE images ADD COLUMN thumbnail_path TEXT`,
	},
	{
		// SQLite doesn't allow expressions in ALTER TABLE ADD COLUMN DEFAULT
		column:   "created_at",
		ddl:      `ALTER TABLE images ADD COLUMN created_at INTEGER NOT NULL DEFAULT 0`,
		backfill: `UPDATE images SET created_at = strftime('%s', 'now') WHERE created_at = 0`,
	},
}

// runMigrations applies additive schema migrations. Existing rows are
// never dropped or rewritten beyond the one-time backfill.
func (d *Database) runMigrations(ctx context.Context) error {
	for _, m := range migrations {
		exists, err := d.columnExists(ctx, "images", m.column)
		if err != nil {
			return fmt.Errorf("failed to check for %s column: %w", m.column, err)
		}
		if exists {
			continue
		}

		logging.Info("Migrating database: adding %s column to images table", m.column)

		if _, err := d.db.ExecContext(ctx, m.ddl); err != nil {
			return fmt.Errorf("failed to add %s column: %w", m.column, err)
		}
		if m.backfill != "" {
			if _, err := d.db.ExecContext(ctx, m.backfill); err != nil {
				return fmt.Errorf("failed to initialize %s values: %w", m.column, err)
			}
		}

		logging.Info("Migration complete: %s column added", m.column)
	}

	// Depends on thumbnail_path, so it can only exist after the migrations.
	_, err := d.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_images_pending ON images(id) WHERE thumbnail_path IS NULL
	`)
	return err
}

func (d *Database) columnExists(ctx context.Context, table, column string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info(?)
		WHERE name = ?
	`, table, column).Scan(&exists)
	return exists, err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// UpsertBatch inserts records in a single transaction and returns how many
// rows were actually added. Rows whose path or hash is already registered
// (including duplicates within records) are skipped. Any statement error
// rolls back the whole batch.
func (d *Database) UpsertBatch(ctx context.Context, records []ImageRecord) (inserted int64, err error) {
	if len(records) == 0 {
		return 0, nil
	}

	start := time.Now()
	defer func() { recordQuery("upsert_batch", start, err) }()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin batch: %w", err)
	}

	defer func() {
		duration := time.Since(start).Seconds()
		if err != nil {
			metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
			inserted = 0
			return
		}
		metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	}()

	for i := 0; i < len(records); i += rowsPerStatement {
		chunk := records[i:min(i+rowsPerStatement, len(records))]
		query, args := buildInsert(chunk)

		result, execErr := tx.ExecContext(ctx, query, args...)
		if execErr != nil {
			return 0, fmt.Errorf("failed to insert batch rows %d-%d: %w", i, i+len(chunk)-1, execErr)
		}
		n, raErr := result.RowsAffected()
		if raErr != nil {
			return 0, fmt.Errorf("failed to read inserted row count: %w", raErr)
		}
		inserted += n
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}

	metrics.DBRowsAffected.WithLabelValues("upsert_batch").Observe(float64(inserted))
	return inserted, nil
}

// buildInsert renders one multi-row insert for chunk.
func buildInsert(chunk []ImageRecord) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(chunk)*6)

	b.WriteString(`INSERT INTO images (file_name, path, extension, size, timestamp, hash, created_at) VALUES `)
	for i, r := range chunk {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(`(?, ?, ?, ?, ?, ?, strftime('%s', 'now'))`)
		args = append(args, r.FileName, r.Path, r.Extension, r.Size, r.ModTime.Unix(), r.Hash)
	}
	b.WriteString(` ON CONFLICT DO NOTHING`)

	return b.String(), args
}

// RecordsMissingThumbnail returns every row without a thumbnail whose
// extension is in extensions, ordered by id. An empty extensions list
// matches nothing.
func (d *Database) RecordsMissingThumbnail(ctx context.Context, extensions []string) (pending []PendingImage, err error) {
	if len(extensions) == 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() { recordQuery("records_missing_thumbnail", start, err) }()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(extensions)), ", ")
	args := make([]any, len(extensions))
	for i, ext := range extensions {
		args[i] = strings.ToLower(ext)
	}

	query := `
	SELECT id, file_name, path, extension
	FROM images
	WHERE thumbnail_path IS NULL AND extension IN (` + placeholders + `)
	ORDER BY id
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p PendingImage
		if err = rows.Scan(&p.ID, &p.FileName, &p.Path, &p.Extension); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	err = rows.Err()
	return pending, err
}

// AttachThumbnail records thumbnailPath on row id if it has none. Attaching
// the same path again is a no-op.
func (d *Database) AttachThumbnail(ctx context.Context, id int64, thumbnailPath string) (err error) {
	start := time.Now()
	defer func() { recordQuery("attach_thumbnail", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx,
		`UPDATE images SET thumbnail_path = ? WHERE id = ? AND thumbnail_path IS NULL`,
		thumbnailPath, id,
	)
	if err != nil {
		return fmt.Errorf("failed to attach thumbnail to image %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		metrics.DBRowsAffected.WithLabelValues("attach_thumbnail").Observe(1)
		return nil
	}

	var current sql.NullString
	err = d.db.QueryRowContext(ctx, `SELECT thumbnail_path FROM images WHERE id = ?`, id).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("image %d: %w", id, ErrImageNotFound)
	case err != nil:
		return fmt.Errorf("failed to read thumbnail of image %d: %w", id, err)
	case current.Valid && current.String == thumbnailPath:
		return nil
	default:
		return fmt.Errorf("image %d has %s: %w", id, current.String, ErrThumbnailAlreadySet)
	}
}

const selectImage = `
	SELECT id, file_name, path, extension, size, timestamp, hash, thumbnail_path, created_at
	FROM images
`

// GetImage retrieves one row by id.
func (d *Database) GetImage(ctx context.Context, id int64) (img *ImageRecord, err error) {
	start := time.Now()
	defer func() { recordQuery("get_image", start, err) }()

	return d.getImage(ctx, selectImage+`WHERE id = ?`, id)
}

// GetImageByHash retrieves one row by content hash.
func (d *Database) GetImageByHash(ctx context.Context, hash string) (img *ImageRecord, err error) {
	start := time.Now()
	defer func() { recordQuery("get_image_by_hash", start, err) }()

	return d.getImage(ctx, selectImage+`WHERE hash = ?`, hash)
}

func (d *Database) getImage(ctx context.Context, query string, arg any) (*ImageRecord, error) {

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var (
		img       ImageRecord
		modTime   int64
		createdAt int64
		thumb     sql.NullString
	)

	err := d.db.QueryRowContext(ctx, query, arg).Scan(
		&img.ID, &img.FileName, &img.Path, &img.Extension,
		&img.Size, &modTime, &img.Hash, &thumb, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, err
	}

	img.ModTime = time.Unix(modTime, 0)
	img.CreatedAt = time.Unix(createdAt, 0)
	img.ThumbnailPath = thumb.String
	return &img, nil
}

// CountImages returns registry totals. Pending counts every row without a
// thumbnail, including formats the thumbnail pass cannot decode.
func (d *Database) CountImages(ctx context.Context) (stats metrics.Stats, err error) {
	start := time.Now()
	defer func() { recordQuery("count_images", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(thumbnail_path) FROM images`,
	).Scan(&stats.TotalImages, &stats.WithThumbnail)
	if err != nil {
		return metrics.Stats{}, err
	}

	stats.PendingThumbs = stats.TotalImages - stats.WithThumbnail
	return stats, nil
}

// RegistryStats implements metrics.StatsProvider.
func (d *Database) RegistryStats(ctx context.Context) (metrics.Stats, error) {
	return d.CountImages(ctx)
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("%s is read-only! Mode: %v - this will cause write failures", path, info.Mode())
		if path == dbPath {
			continue
		}
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			logging.Error("Failed to fix permissions on %s: %v", path, chmodErr)
		} else {
			logging.Info("Fixed permissions on %s", path)
		}
	}

	return nil
}
