package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"photo-catalog/internal/logging"
)

// recordColumns is every column of the images table except id, in the
// canonical order shared by insert and scan.
const recordColumns = `filename, filepath, file_hash, file_size, file_format,
	is_raw, raw_format, raw_info,
	width, height, aspect_ratio, megapixels,
	camera_make, camera_model, lens_model, focal_length, focal_length_35mm, aperture,
	shutter_speed, shutter_speed_decimal, iso, exposure_mode, exposure_bias,
	metering_mode, white_balance, flash_used, flash_mode, color_space, orientation,
	datetime_original, datetime_digitized, datetime_modified, processed_date,
	gps_latitude, gps_longitude, gps_altitude, gps_direction,
	gps_city, gps_state, gps_country, gps_location,
	artist, copyright, software,
	title, description, lr_rating, color_label, lr_instructions,
	exif_json,
	clip_embedding, dinov2_embedding, aesthetic_score, technical_score, is_monochrome,
	tags, bioclip_taxonomy, geo_hierarchy,
	ai_description_hash, model_used, processing_time, embedding_generated,
	llm_generated, success, error_message, app_version,
	sync_state, last_xmp_mtime, last_sync_at, last_sync_check_at, last_import_mtime`

const recordColumnCount = 71

// SetMutationHook registers a callback invoked with the record id after
// every successful mutating operation. Used to invalidate per-record
// sync analysis caches.
func (s *Store) SetMutationHook(hook func(id int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMutate = hook
}

func (s *Store) notifyMutation(id int64) {
	if s.onMutate != nil {
		s.onMutate(id)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func marshalList(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalList(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// embeddingDim returns the catalog's established vector length for the
// given embedding column, probing the table on first use. 0 means no
// decodable vector has been recorded yet.
func (s *Store) embeddingDim(ctx context.Context, column string) (int, error) {
	s.embMu.Lock()
	defer s.embMu.Unlock()
	if d, ok := s.embDims[column]; ok {
		return d, nil
	}

	var blob []byte
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT %s FROM images WHERE %s IS NOT NULL LIMIT 1", column, column)).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("embedding dimension probe failed: %w", err)
	}

	vec, err := DecodeEmbedding(blob)
	if err != nil {
		// An undecodable legacy blob establishes nothing.
		return 0, nil
	}
	s.embDims[column] = len(vec)
	return len(vec), nil
}

// validateEmbedding enforces the per-model dimension invariant: the
// first vector written establishes the column's dimension, every later
// write must match it.
func (s *Store) validateEmbedding(ctx context.Context, column string, vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	d, err := s.embeddingDim(ctx, column)
	if err != nil {
		return err
	}
	if d != 0 && d != len(vec) {
		return fmt.Errorf("%w: %s vector has %d values, catalog holds %d", ErrInvalidEmbedding, column, len(vec), d)
	}
	return nil
}

// Insert adds a fully populated record and returns its new id. Derived
// geometry fields are computed here; filename and file_hash uniqueness
// violations map to ErrDuplicate.
func (s *Store) Insert(ctx context.Context, r *ImageRecord) (int64, error) {
	done := observeQuery("insert")

	if err := validateTags(r.Tags); err != nil {
		done(err)
		return 0, err
	}
	if r.LrRating != 0 && (r.LrRating < 1 || r.LrRating > 5) {
		done(ErrInvalidRating)
		return 0, ErrInvalidRating
	}
	if err := s.validateEmbedding(ctx, "clip_embedding", r.ClipEmbedding); err != nil {
		done(err)
		return 0, err
	}
	if err := s.validateEmbedding(ctx, "dinov2_embedding", r.Dinov2Embedding); err != nil {
		done(err)
		return 0, err
	}
	r.computeDerived()
	if r.ProcessedDate == "" {
		r.ProcessedDate = time.Now().Format("2006-01-02 15:04:05")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		done(ErrClosed)
		return 0, ErrClosed
	}

	qCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", recordColumnCount), ", ")
	query := fmt.Sprintf("INSERT INTO images (%s) VALUES (%s)", recordColumns, placeholders)

	var fileHash interface{}
	if r.FileHash != "" {
		fileHash = r.FileHash
	}

	result, err := s.db.ExecContext(qCtx, query,
		r.Filename, r.Filepath, fileHash, r.FileSize, r.FileFormat,
		boolToInt(r.IsRaw), r.RawFormat, r.RawInfo,
		r.Width, r.Height, r.AspectRatio, r.Megapixels,
		r.CameraMake, r.CameraModel, r.LensModel, r.FocalLength, r.FocalLength35mm, r.Aperture,
		r.ShutterSpeed, r.ShutterSpeedDecimal, r.ISO, r.ExposureMode, r.ExposureBias,
		r.MeteringMode, r.WhiteBalance, boolToInt(r.FlashUsed), r.FlashMode, r.ColorSpace, r.Orientation,
		r.DateTimeOriginal, r.DateTimeDigitized, r.DateTimeModified, r.ProcessedDate,
		nullableFloat(r.GPSLatitude), nullableFloat(r.GPSLongitude), nullableFloat(r.GPSAltitude), nullableFloat(r.GPSDirection),
		r.GPSCity, r.GPSState, r.GPSCountry, r.GPSLocation,
		r.Artist, r.Copyright, r.Software,
		r.Title, r.Description, r.LrRating, r.ColorLabel, r.LrInstructions,
		r.ExifJSON,
		EncodeEmbedding(r.ClipEmbedding), EncodeEmbedding(r.Dinov2Embedding),
		r.AestheticScore, r.TechnicalScore, boolToInt(r.IsMonochrome),
		marshalList(r.Tags), marshalList(r.BioclipTaxonomy), r.GeoHierarchy,
		r.AIDescriptionHash, r.ModelUsed, r.ProcessingTime, boolToInt(r.EmbeddingGenerated),
		boolToInt(r.LLMGenerated), boolToInt(r.Success), r.ErrorMessage, r.AppVersion,
		r.SyncState, r.LastXMPMtime, r.LastSyncAt, r.LastSyncCheckAt, r.LastImportMtime,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			done(ErrDuplicate)
			return 0, ErrDuplicate
		}
		done(err)
		return 0, fmt.Errorf("insert failed: %w", err)
	}

	id, err := result.LastInsertId()
	done(err)
	if err != nil {
		return 0, fmt.Errorf("insert id retrieval failed: %w", err)
	}
	r.ID = id
	return id, nil
}

// ExistsFilename reports whether a record with the given filename exists.
func (s *Store) ExistsFilename(ctx context.Context, name string) (bool, error) {
	return s.existsBy(ctx, "exists_filename", "filename", name)
}

// ExistsHash reports whether a record with the given content hash exists.
func (s *Store) ExistsHash(ctx context.Context, hash string) (bool, error) {
	return s.existsBy(ctx, "exists_hash", "file_hash", hash)
}

func (s *Store) existsBy(ctx context.Context, op, column, value string) (bool, error) {
	done := observeQuery(op)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		done(ErrClosed)
		return false, ErrClosed
	}

	qCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var one int
	err := s.db.QueryRowContext(qCtx,
		fmt.Sprintf("SELECT 1 FROM images WHERE %s = ? LIMIT 1", column), value,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return false, nil
	}
	done(err)
	if err != nil {
		return false, fmt.Errorf("existence check failed: %w", err)
	}
	return true, nil
}

// GetByFilepath returns the record stored for path, or nil when absent.
func (s *Store) GetByFilepath(ctx context.Context, path string) (*ImageRecord, error) {
	done := observeQuery("get_by_filepath")

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		done(ErrClosed)
		return nil, ErrClosed
	}

	qCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(qCtx,
		fmt.Sprintf("SELECT id, %s FROM images WHERE filepath = ?", recordColumns), path)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return nil, nil
	}
	done(err)
	if err != nil {
		return nil, fmt.Errorf("get by filepath failed: %w", err)
	}
	return r, nil
}

// GetByID returns the record with the given id, or nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*ImageRecord, error) {
	done := observeQuery("get_by_id")

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		done(ErrClosed)
		return nil, ErrClosed
	}

	qCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(qCtx,
		fmt.Sprintf("SELECT id, %s FROM images WHERE id = ?", recordColumns), id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return nil, nil
	}
	done(err)
	if err != nil {
		return nil, fmt.Errorf("get by id failed: %w", err)
	}
	return r, nil
}

// GetAll returns every record ordered by descending processed date.
func (s *Store) GetAll(ctx context.Context) ([]*ImageRecord, error) {
	done := observeQuery("get_all")

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		done(ErrClosed)
		return nil, ErrClosed
	}

	qCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(qCtx,
		fmt.Sprintf("SELECT id, %s FROM images ORDER BY processed_date DESC", recordColumns))
	if err != nil {
		done(err)
		return nil, fmt.Errorf("get all failed: %w", err)
	}
	defer rows.Close()

	var records []*ImageRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			done(err)
			return nil, fmt.Errorf("record scan failed: %w", err)
		}
		records = append(records, r)
	}
	err = rows.Err()
	done(err)
	if err != nil {
		return nil, fmt.Errorf("get all iteration failed: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*ImageRecord, error) {
	var r ImageRecord
	var fileHash sql.NullString
	var isRaw, flashUsed, isMono, embGen, llmGen, success int
	var lat, lon, alt, dir sql.NullFloat64
	var clipBlob, dinoBlob []byte
	var tags, taxonomy string

	err := row.Scan(
		&r.ID,
		&r.Filename, &r.Filepath, &fileHash, &r.FileSize, &r.FileFormat,
		&isRaw, &r.RawFormat, &r.RawInfo,
		&r.Width, &r.Height, &r.AspectRatio, &r.Megapixels,
		&r.CameraMake, &r.CameraModel, &r.LensModel, &r.FocalLength, &r.FocalLength35mm, &r.Aperture,
		&r.ShutterSpeed, &r.ShutterSpeedDecimal, &r.ISO, &r.ExposureMode, &r.ExposureBias,
		&r.MeteringMode, &r.WhiteBalance, &flashUsed, &r.FlashMode, &r.ColorSpace, &r.Orientation,
		&r.DateTimeOriginal, &r.DateTimeDigitized, &r.DateTimeModified, &r.ProcessedDate,
		&lat, &lon, &alt, &dir,
		&r.GPSCity, &r.GPSState, &r.GPSCountry, &r.GPSLocation,
		&r.Artist, &r.Copyright, &r.Software,
		&r.Title, &r.Description, &r.LrRating, &r.ColorLabel, &r.LrInstructions,
		&r.ExifJSON,
		&clipBlob, &dinoBlob, &r.AestheticScore, &r.TechnicalScore, &isMono,
		&tags, &taxonomy, &r.GeoHierarchy,
		&r.AIDescriptionHash, &r.ModelUsed, &r.ProcessingTime, &embGen,
		&llmGen, &success, &r.ErrorMessage, &r.AppVersion,
		&r.SyncState, &r.LastXMPMtime, &r.LastSyncAt, &r.LastSyncCheckAt, &r.LastImportMtime,
	)
	if err != nil {
		return nil, err
	}

	if fileHash.Valid {
		r.FileHash = fileHash.String
	}
	r.IsRaw = isRaw != 0
	r.FlashUsed = flashUsed != 0
	r.IsMonochrome = isMono != 0
	r.EmbeddingGenerated = embGen != 0
	r.LLMGenerated = llmGen != 0
	r.Success = success != 0
	if lat.Valid {
		r.GPSLatitude = &lat.Float64
	}
	if lon.Valid {
		r.GPSLongitude = &lon.Float64
	}
	if alt.Valid {
		r.GPSAltitude = &alt.Float64
	}
	if dir.Valid {
		r.GPSDirection = &dir.Float64
	}
	r.Tags = unmarshalList(tags)
	r.BioclipTaxonomy = unmarshalList(taxonomy)

	if r.ClipEmbedding, err = DecodeEmbedding(clipBlob); err != nil {
		logging.Warn("record %d: clip embedding undecodable: %v", r.ID, err)
		r.ClipEmbedding = nil
	}
	if r.Dinov2Embedding, err = DecodeEmbedding(dinoBlob); err != nil {
		logging.Warn("record %d: dinov2 embedding undecodable: %v", r.ID, err)
		r.Dinov2Embedding = nil
	}

	return &r, nil
}

// execUpdate runs a single-row update under the write lock and reports
// whether a row was affected.
func (s *Store) execUpdate(ctx context.Context, op, query string, id int64, args ...interface{}) (bool, error) {
	done := observeQuery(op)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		done(ErrClosed)
		return false, ErrClosed
	}

	qCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	args = append(args, id)
	result, err := s.db.ExecContext(qCtx, query, args...)
	if err != nil {
		done(err)
		return false, fmt.Errorf("%s failed: %w", op, err)
	}
	affected, err := result.RowsAffected()
	done(err)
	if err != nil {
		return false, fmt.Errorf("%s affected-rows failed: %w", op, err)
	}
	if affected > 0 {
		s.notifyMutation(id)
	}
	return affected > 0, nil
}

// UpdateTags replaces the unified tag list. Taxonomic entries are
// rejected with ErrInvalidTags.
func (s *Store) UpdateTags(ctx context.Context, id int64, tags []string) (bool, error) {
	if err := validateTags(tags); err != nil {
		return false, err
	}
	return s.execUpdate(ctx, "update_tags",
		"UPDATE images SET tags = ? WHERE id = ?", id, marshalList(tags))
}

// UpdateBioclipTaxonomy replaces the taxonomic chain (kingdom down to
// species epithet). Chains longer than the cap are truncated.
func (s *Store) UpdateBioclipTaxonomy(ctx context.Context, id int64, taxonomy []string) (bool, error) {
	if len(taxonomy) > MaxTaxonomyDepth {
		logging.Warn("record %d: taxonomy chain truncated from %d to %d entries", id, len(taxonomy), MaxTaxonomyDepth)
		taxonomy = taxonomy[:MaxTaxonomyDepth]
	}
	return s.execUpdate(ctx, "update_bioclip_taxonomy",
		"UPDATE images SET bioclip_taxonomy = ? WHERE id = ?", id, marshalList(taxonomy))
}

// UpdateGeoHierarchy replaces the pipe-separated location chain.
func (s *Store) UpdateGeoHierarchy(ctx context.Context, id int64, hierarchy string) (bool, error) {
	return s.execUpdate(ctx, "update_geo_hierarchy",
		"UPDATE images SET geo_hierarchy = ? WHERE id = ?", id, hierarchy)
}

// UpdateTitle sets the title.
func (s *Store) UpdateTitle(ctx context.Context, id int64, title string) (bool, error) {
	return s.execUpdate(ctx, "update_title",
		"UPDATE images SET title = ? WHERE id = ?", id, title)
}

// UpdateDescription sets the description.
func (s *Store) UpdateDescription(ctx context.Context, id int64, description string) (bool, error) {
	return s.execUpdate(ctx, "update_description",
		"UPDATE images SET description = ? WHERE id = ?", id, description)
}

// UpdateRating sets the star rating; 0 clears it.
func (s *Store) UpdateRating(ctx context.Context, id int64, rating int) (bool, error) {
	if rating != 0 && (rating < 1 || rating > 5) {
		return false, ErrInvalidRating
	}
	return s.execUpdate(ctx, "update_rating",
		"UPDATE images SET lr_rating = ? WHERE id = ?", id, rating)
}

// UpdateColorLabel sets the color label; "" clears it.
func (s *Store) UpdateColorLabel(ctx context.Context, id int64, label string) (bool, error) {
	return s.execUpdate(ctx, "update_color_label",
		"UPDATE images SET color_label = ? WHERE id = ?", id, label)
}

// metadataWhitelist is the set of columns UpdateMetadata may touch.
var metadataWhitelist = map[string]bool{
	"camera_make": true, "camera_model": true, "lens_model": true,
	"focal_length": true, "focal_length_35mm": true, "aperture": true,
	"shutter_speed": true, "shutter_speed_decimal": true, "iso": true,
	"exposure_mode": true, "exposure_bias": true, "metering_mode": true,
	"white_balance": true, "flash_used": true, "flash_mode": true,
	"color_space": true, "orientation": true,
	"datetime_original": true, "datetime_digitized": true, "datetime_modified": true,
	"gps_latitude": true, "gps_longitude": true, "gps_altitude": true, "gps_direction": true,
	"gps_city": true, "gps_state": true, "gps_country": true, "gps_location": true,
	"artist": true, "copyright": true, "software": true,
	"lr_instructions": true, "exif_json": true, "raw_info": true,
	"ai_description_hash": true, "model_used": true, "processing_time": true,
	"llm_generated": true, "success": true, "error_message": true, "app_version": true,
}

// UpdateMetadata applies a bulk field update. Unknown fields are
// ignored with a warning rather than failing the whole call.
func (s *Store) UpdateMetadata(ctx context.Context, id int64, fields map[string]interface{}) (bool, error) {
	if len(fields) == 0 {
		return false, nil
	}

	setClauses := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields))
	for field, value := range fields {
		if !metadataWhitelist[field] {
			logging.Warn("record %d: ignoring unknown metadata field %q", id, field)
			continue
		}
		setClauses = append(setClauses, field+" = ?")
		args = append(args, value)
	}
	if len(setClauses) == 0 {
		return false, nil
	}

	query := fmt.Sprintf("UPDATE images SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	return s.execUpdate(ctx, "update_metadata", query, id, args...)
}

// UpdateEmbedding stores a model's vector for the record and marks the
// record as having embeddings. Model is "clip" or "dinov2"; a vector
// whose length disagrees with the column's established dimension is
// rejected with ErrInvalidEmbedding.
func (s *Store) UpdateEmbedding(ctx context.Context, id int64, model string, vec []float32) (bool, error) {
	var column string
	switch model {
	case "clip":
		column = "clip_embedding"
	case "dinov2":
		column = "dinov2_embedding"
	default:
		return false, fmt.Errorf("unknown embedding model %q", model)
	}
	if err := s.validateEmbedding(ctx, column, vec); err != nil {
		return false, err
	}
	query := fmt.Sprintf("UPDATE images SET %s = ?, embedding_generated = 1 WHERE id = ?", column)
	return s.execUpdate(ctx, "update_embedding", query, id, EncodeEmbedding(vec))
}

// UpdateScores stores the quality scores and monochrome flag.
func (s *Store) UpdateScores(ctx context.Context, id int64, aesthetic, technical float64, monochrome bool) (bool, error) {
	return s.execUpdate(ctx, "update_scores",
		"UPDATE images SET aesthetic_score = ?, technical_score = ?, is_monochrome = ? WHERE id = ?",
		id, aesthetic, technical, boolToInt(monochrome))
}

// SyncFields carries the synchronization bookkeeping written by the
// sync analyzer and writer.
type SyncFields struct {
	State           string
	LastXMPMtime    float64
	LastSyncAt      string
	LastSyncCheckAt string
	LastImportMtime float64
}

// UpdateSyncState records the outcome of a sync analysis or write.
func (s *Store) UpdateSyncState(ctx context.Context, id int64, f SyncFields) (bool, error) {
	return s.execUpdate(ctx, "update_sync_state",
		`UPDATE images SET sync_state = ?, last_xmp_mtime = ?, last_sync_at = ?,
			last_sync_check_at = ?, last_import_mtime = ? WHERE id = ?`,
		id, f.State, f.LastXMPMtime, f.LastSyncAt, f.LastSyncCheckAt, f.LastImportMtime)
}

// Delete removes a single record. The underlying file is never touched.
func (s *Store) Delete(ctx context.Context, id int64) (int, error) {
	done := observeQuery("delete")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		done(ErrClosed)
		return 0, ErrClosed
	}

	qCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := s.db.ExecContext(qCtx, "DELETE FROM images WHERE id = ?", id)
	if err != nil {
		done(err)
		return 0, fmt.Errorf("delete failed: %w", err)
	}
	affected, err := result.RowsAffected()
	done(err)
	if err != nil {
		return 0, fmt.Errorf("delete affected-rows failed: %w", err)
	}
	if affected > 0 {
		s.notifyMutation(id)
	}
	return int(affected), nil
}

// DeleteBatch removes several records in one transaction and returns
// the number actually deleted.
func (s *Store) DeleteBatch(ctx context.Context, ids []int64) (int, error) {
	done := observeQuery("delete_batch")

	if len(ids) == 0 {
		done(nil)
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		done(ErrClosed)
		return 0, ErrClosed
	}

	qCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(qCtx, nil)
	if err != nil {
		done(err)
		return 0, fmt.Errorf("delete batch begin failed: %w", err)
	}

	var total int64
	for _, id := range ids {
		result, err := tx.ExecContext(qCtx, "DELETE FROM images WHERE id = ?", id)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error("delete batch rollback failed: %v", rbErr)
			}
			done(err)
			return 0, fmt.Errorf("delete batch failed: %w", err)
		}
		affected, _ := result.RowsAffected()
		total += affected
	}

	err = tx.Commit()
	done(err)
	if err != nil {
		return 0, fmt.Errorf("delete batch commit failed: %w", err)
	}
	for _, id := range ids {
		s.notifyMutation(id)
	}
	return int(total), nil
}
