package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

// Default timeout for store operations.
const defaultTimeout = 5 * time.Second

// Sentinel errors returned by store operations.
var (
	ErrDuplicate        = errors.New("record with same filename or file hash already exists")
	ErrInvalidTags      = errors.New("tag list contains empty or taxonomic entries")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrInvalidEmbedding = errors.New("embedding length does not match the catalog's dimension")
	ErrClosed           = errors.New("store is closed")
)

// Store manages the catalog database. Reads run concurrently; writes
// are serialized through mu.
type Store struct {
	db       *sql.DB
	dbPath   string
	mu       sync.RWMutex
	closed   bool
	onMutate func(id int64)

	embMu   sync.Mutex
	embDims map[string]int // per embedding column, probed lazily
}

// Open opens (creating if needed) the catalog database at dbPath. The
// parent directory must already exist and be writable.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Catalog database path: %s", dbPath)

	// WAL mode plus busy_timeout keeps concurrent readers from hitting
	// "database is locked" errors.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close catalog database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to catalog database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:      db,
		dbPath:  dbPath,
		embDims: make(map[string]int),
	}

	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close catalog database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	metrics.DBConnectionsOpen.Set(float64(db.Stats().OpenConnections))
	logging.Info("Catalog database initialized at %s", dbPath)
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL UNIQUE,
		filepath TEXT NOT NULL,
		file_hash TEXT UNIQUE,
		file_size INTEGER NOT NULL DEFAULT 0,
		file_format TEXT NOT NULL DEFAULT '',

		is_raw INTEGER NOT NULL DEFAULT 0,
		raw_format TEXT NOT NULL DEFAULT '',
		raw_info TEXT NOT NULL DEFAULT '',

		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		aspect_ratio REAL NOT NULL DEFAULT 0,
		megapixels REAL NOT NULL DEFAULT 0,

		camera_make TEXT NOT NULL DEFAULT '',
		camera_model TEXT NOT NULL DEFAULT '',
		lens_model TEXT NOT NULL DEFAULT '',
		focal_length REAL NOT NULL DEFAULT 0,
		focal_length_35mm REAL NOT NULL DEFAULT 0,
		aperture REAL NOT NULL DEFAULT 0,
		shutter_speed TEXT NOT NULL DEFAULT '',
		shutter_speed_decimal REAL NOT NULL DEFAULT 0,
		iso INTEGER NOT NULL DEFAULT 0,
		exposure_mode TEXT NOT NULL DEFAULT '',
		exposure_bias REAL NOT NULL DEFAULT 0,
		metering_mode TEXT NOT NULL DEFAULT '',
		white_balance TEXT NOT NULL DEFAULT '',
		flash_used INTEGER NOT NULL DEFAULT 0,
		flash_mode TEXT NOT NULL DEFAULT '',
		color_space TEXT NOT NULL DEFAULT '',
		orientation INTEGER NOT NULL DEFAULT 0,

		datetime_original TEXT NOT NULL DEFAULT '',
		datetime_digitized TEXT NOT NULL DEFAULT '',
		datetime_modified TEXT NOT NULL DEFAULT '',
		processed_date TEXT NOT NULL DEFAULT '',

		gps_latitude REAL,
		gps_longitude REAL,
		gps_altitude REAL,
		gps_direction REAL,
		gps_city TEXT NOT NULL DEFAULT '',
		gps_state TEXT NOT NULL DEFAULT '',
		gps_country TEXT NOT NULL DEFAULT '',
		gps_location TEXT NOT NULL DEFAULT '',

		artist TEXT NOT NULL DEFAULT '',
		copyright TEXT NOT NULL DEFAULT '',
		software TEXT NOT NULL DEFAULT '',

		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		lr_rating INTEGER NOT NULL DEFAULT 0,
		color_label TEXT NOT NULL DEFAULT '',
		lr_instructions TEXT NOT NULL DEFAULT '',

		exif_json TEXT NOT NULL DEFAULT '',

		clip_embedding BLOB,
		dinov2_embedding BLOB,
		aesthetic_score REAL NOT NULL DEFAULT 0,
		technical_score REAL NOT NULL DEFAULT 0,
		is_monochrome INTEGER NOT NULL DEFAULT 0,

		tags TEXT NOT NULL DEFAULT '[]',
		bioclip_taxonomy TEXT NOT NULL DEFAULT '[]',
		geo_hierarchy TEXT NOT NULL DEFAULT '',

		ai_description_hash TEXT NOT NULL DEFAULT '',
		model_used TEXT NOT NULL DEFAULT '',
		processing_time REAL NOT NULL DEFAULT 0,
		embedding_generated INTEGER NOT NULL DEFAULT 0,
		llm_generated INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 1,
		error_message TEXT NOT NULL DEFAULT '',
		app_version TEXT NOT NULL DEFAULT '',

		sync_state TEXT NOT NULL DEFAULT '',
		last_xmp_mtime REAL NOT NULL DEFAULT 0,
		last_sync_at TEXT NOT NULL DEFAULT '',
		last_sync_check_at TEXT NOT NULL DEFAULT '',
		last_import_mtime REAL NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_images_filename ON images(filename);
	CREATE INDEX IF NOT EXISTS idx_images_file_hash ON images(file_hash);
	CREATE INDEX IF NOT EXISTS idx_images_camera_model ON images(camera_model);
	CREATE INDEX IF NOT EXISTS idx_images_datetime_original ON images(datetime_original);
	CREATE INDEX IF NOT EXISTS idx_images_focal_length ON images(focal_length);
	CREATE INDEX IF NOT EXISTS idx_images_iso ON images(iso);
	CREATE INDEX IF NOT EXISTS idx_images_gps_latitude ON images(gps_latitude);
	CREATE INDEX IF NOT EXISTS idx_images_gps_longitude ON images(gps_longitude);
	CREATE INDEX IF NOT EXISTS idx_images_aesthetic_score ON images(aesthetic_score);
	CREATE INDEX IF NOT EXISTS idx_images_technical_score ON images(technical_score);
	CREATE INDEX IF NOT EXISTS idx_images_is_monochrome ON images(is_monochrome);
	CREATE INDEX IF NOT EXISTS idx_images_embedding_generated ON images(embedding_generated);
	CREATE INDEX IF NOT EXISTS idx_images_processed_date ON images(processed_date);
	CREATE INDEX IF NOT EXISTS idx_images_tags ON images(tags);
	CREATE INDEX IF NOT EXISTS idx_images_lr_rating ON images(lr_rating);
	`

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(initCtx, schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}

	return s.runMigrations(initCtx)
}

// runMigrations brings a catalog created by an earlier release up to
// the current schema. Each step probes pragma_table_info first, so
// re-running against a current database is a no-op.
func (s *Store) runMigrations(ctx context.Context) error {
	migrations := []struct {
		column string
		ddl    string
	}{
		// Geographic hierarchy string, added with the reverse-geocoding
		// enrichment step.
		{"geo_hierarchy", "ALTER TABLE images ADD COLUMN geo_hierarchy TEXT NOT NULL DEFAULT ''"},
		// Sync bookkeeping, added with the XMP sync engine.
		{"sync_state", "ALTER TABLE images ADD COLUMN sync_state TEXT NOT NULL DEFAULT ''"},
		{"last_xmp_mtime", "ALTER TABLE images ADD COLUMN last_xmp_mtime REAL NOT NULL DEFAULT 0"},
		{"last_sync_at", "ALTER TABLE images ADD COLUMN last_sync_at TEXT NOT NULL DEFAULT ''"},
		{"last_sync_check_at", "ALTER TABLE images ADD COLUMN last_sync_check_at TEXT NOT NULL DEFAULT ''"},
		{"last_import_mtime", "ALTER TABLE images ADD COLUMN last_import_mtime REAL NOT NULL DEFAULT 0"},
	}

	for _, m := range migrations {
		exists, err := s.columnExists(ctx, m.column)
		if err != nil {
			return fmt.Errorf("failed to check for %s column: %w", m.column, err)
		}
		if exists {
			continue
		}

		logging.Info("Migrating catalog: adding %s column to images table", m.column)
		if _, err := s.db.ExecContext(ctx, m.ddl); err != nil {
			return fmt.Errorf("failed to add %s column: %w", m.column, err)
		}
	}
	return nil
}

func (s *Store) columnExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('images')
		WHERE name = ?
	`, name).Scan(&exists)
	return exists, err
}

// Close shuts the store down. It is idempotent and safe to call from
// any goroutine.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close catalog database: %w", err)
	}
	logging.Info("Catalog database closed")
	return nil
}

// Path returns the filesystem path of the database file.
func (s *Store) Path() string {
	return s.dbPath
}

// observeQuery starts a query metric observation; call the returned
// func with the operation's final error.
func observeQuery(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
		metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// Vacuum compacts the database file.
func (s *Store) Vacuum(ctx context.Context) error {
	done := observeQuery("vacuum")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		done(ErrClosed)
		return ErrClosed
	}

	vacCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	_, err := s.db.ExecContext(vacCtx, "VACUUM")
	done(err)
	if err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	return nil
}

// Stats summarizes catalog contents.
type Stats struct {
	Total          int
	WithEmbeddings int
	WithTags       int
	Monochrome     int
	Raw            int
}

// GetStats returns catalog counters and refreshes the records gauge.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	done := observeQuery("stats")

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		done(ErrClosed)
		return nil, ErrClosed
	}

	qCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var st Stats
	err := s.db.QueryRowContext(qCtx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN embedding_generated = 1 THEN 1 END),
			COUNT(CASE WHEN tags != '[]' AND tags != '' THEN 1 END),
			COUNT(CASE WHEN is_monochrome = 1 THEN 1 END),
			COUNT(CASE WHEN is_raw = 1 THEN 1 END)
		FROM images
	`).Scan(&st.Total, &st.WithEmbeddings, &st.WithTags, &st.Monochrome, &st.Raw)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}

	metrics.CatalogRecords.Set(float64(st.Total))
	return &st, nil
}
