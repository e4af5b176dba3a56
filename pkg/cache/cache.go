package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type CacheConfig struct {
	DetectionsTTL time.Duration
}

var DefaultCacheConfig = CacheConfig{
	DetectionsTTL: 30 * 24 * time.Hour,
}

// Manager stores format detections for schematic files so repeated listings
// can skip sniffing unchanged files.
type Manager struct {
	db     *sql.DB
	config CacheConfig
}

// Detection is the detected format of one file at a given size and mtime.
// An empty Format records that no format matched.
type Detection struct {
	Path      string
	Size      int64
	ModTime   time.Time
	Format    string
	UpdatedAt time.Time
}

func NewManager(dbPath string) (*Manager, error) {
	return NewManagerWithConfig(dbPath, DefaultCacheConfig)
}

func NewManagerWithConfig(dbPath string, config CacheConfig) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serialises writers anyway
	db.SetMaxOpenConns(1)

	cm := &Manager{db: db, config: config}
	if err := cm.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return cm, nil
}

func (cm *Manager) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS detections (
			path TEXT PRIMARY KEY,
			size INTEGER NOT NULL,
			mod_time INTEGER NOT NULL,
			format TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_updated_at ON detections(updated_at)`,
	}

	for _, query := range queries {
		if _, err := cm.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

func (cm *Manager) Close() error {
	return cm.db.Close()
}

// GetDetection returns the cached format name for path if the cached row
// matches size and modTime and has not expired.
func (cm *Manager) GetDetection(path string, size int64, modTime time.Time) (string, bool, error) {
	query := fmt.Sprintf(`SELECT format
	          FROM detections
	          WHERE path = ? AND size = ? AND mod_time = ?
	          AND datetime(updated_at) > datetime('now', '-%d seconds')`, int(cm.config.DetectionsTTL.Seconds()))

	var format string
	err := cm.db.QueryRow(query, path, size, modTime.UnixNano()).Scan(&format)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query detection: %w", err)
	}
	return format, true, nil
}

// GetDetections loads every cached row keyed by path.
func (cm *Manager) GetDetections() (map[string]Detection, error) {
	query := fmt.Sprintf(`SELECT path, size, mod_time, format, updated_at
	          FROM detections
	          WHERE datetime(updated_at) > datetime('now', '-%d seconds')`, int(cm.config.DetectionsTTL.Seconds()))

	rows, err := cm.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	detections := make(map[string]Detection)
	for rows.Next() {
		var d Detection
		var modTime int64
		if err := rows.Scan(&d.Path, &d.Size, &modTime, &d.Format, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		d.ModTime = time.Unix(0, modTime)
		detections[d.Path] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read detections: %w", err)
	}

	return detections, nil
}

// SetDetections upserts rows in one transaction.
func (cm *Manager) SetDetections(detections []Detection) error {
	if len(detections) == 0 {
		return nil
	}

	tx, err := cm.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO detections (path, size, mod_time, format, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range detections {
		if _, err := stmt.Exec(d.Path, d.Size, d.ModTime.UnixNano(), d.Format); err != nil {
			return fmt.Errorf("failed to insert detection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteDetection drops the row for path, e.g. after the file was deleted.
func (cm *Manager) DeleteDetection(path string) error {
	if _, err := cm.db.Exec(`DELETE FROM detections WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete detection: %w", err)
	}
	return nil
}

// Prune removes rows whose path is not in keep. It returns the number of
// rows removed.
func (cm *Manager) Prune(keep map[string]bool) (int, error) {
	existing, err := cm.GetDetections()
	if err != nil {
		return 0, err
	}

	removed := 0
	for path := range existing {
		if keep[path] {
			continue
		}
		if err := cm.DeleteDetection(path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// ClearCache removes every row.
func (cm *Manager) ClearCache() error {
	if _, err := cm.db.Exec("DELETE FROM detections"); err != nil {
		return fmt.Errorf("failed to clear detections: %w", err)
	}
	return nil
}
