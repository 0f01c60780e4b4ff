package historydb

import (
	"errors"
	"strings"
	"time"

	dbmodel "agentdock/internal/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KindDir  = "dir"
	KindFile = "file"
)

type Entry struct {
	Path          string
	Kind          string
	FirstAccessed time.Time
	LastAccessed  time.Time
	AccessCount   int
}

// Store records paths picked in panels, most recent first.
type Store struct {
	db *gorm.DB
}

// NewStore uses the shared global DB. Caller must not close the db.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: db}, nil
}

func (s *Store) Upsert(path, kind string) error {
	if s == nil || s.db == nil {
		return errors.New("history store is not initialized")
	}
	p := strings.TrimSpace(path)
	if p == "" {
		return errors.New("path is required")
	}
	if kind != KindFile {
		kind = KindDir
	}
	now := time.Now().UTC().Unix()
	row := dbmodel.PathHistory{
		Path:            p,
		Kind:            kind,
		FirstAccessedAt: now,
		LastAccessedAt:  now,
		AccessCount:     1,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "path"}},
		DoUpdates: clause.Assignments(map[string]any{
			"kind":             kind,
			"last_accessed_at": now,
			"access_count":     gorm.Expr("path_history.access_count + 1"),
		}),
	}).Create(&row).Error
}

// List returns up to limit entries. An empty kind lists both kinds.
func (s *Store) List(kind string, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history store is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	q := s.db.Order("last_accessed_at DESC").Order("path ASC").Limit(limit)
	if kind = strings.TrimSpace(kind); kind != "" {
		q = q.Where("kind = ?", kind)
	}
	rows := make([]dbmodel.PathHistory, 0, limit)
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			Path:          row.Path,
			Kind:          row.Kind,
			FirstAccessed: time.Unix(row.FirstAccessedAt, 0).UTC(),
			LastAccessed:  time.Unix(row.LastAccessedAt, 0).UTC(),
			AccessCount:   row.AccessCount,
		})
	}
	return entries, nil
}

func (s *Store) Clear() error {
	if s == nil || s.db == nil {
		return errors.New("history store is not initialized")
	}
	return s.db.Where("1 = 1").Delete(&dbmodel.PathHistory{}).Error
}

// Close is a no-op; DB is process-wide and must not be closed by the store.
func (s *Store) Close() error {
	return nil
}
