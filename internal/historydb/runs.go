package historydb

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	dbmodel "agentdock/internal/db"
	"agentdock/internal/events"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RunRecord struct {
	RunID       string    `json:"run_id"`
	PanelID     string    `json:"panel_id"`
	CommandLine string    `json:"command_line"`
	Status      string    `json:"status"`
	ExitCode    int       `json:"exit_code"`
	Message     string    `json:"message"`
	OutputBytes int       `json:"output_bytes"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}

// RunStore keeps one row per supervised process.
type RunStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRunStore(db *gorm.DB, logger *slog.Logger) (*RunStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunStore{db: db, logger: logger}, nil
}

func (s *RunStore) Start(e events.RunStartedEvent) error {
	if s == nil || s.db == nil {
		return errors.New("run store is not initialized")
	}
	if strings.TrimSpace(e.RunID) == "" {
		return errors.New("run_id is required")
	}
	row := dbmodel.Run{
		RunID:       e.RunID,
		PanelID:     e.PanelID,
		CommandLine: e.CommandLine,
		Status:      "running",
		StartedAt:   e.StartedAt.UTC().Unix(),
	}
	// Finish may land first; keep its status and fill in the command line.
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.Assignments(map[string]any{"command_line": row.CommandLine}),
	}).Create(&row).Error
}

// Finish stores the terminal status. A run never seen by Start is inserted.
func (s *RunStore) Finish(e events.RunFinishedEvent) error {
	if s == nil || s.db == nil {
		return errors.New("run store is not initialized")
	}
	if strings.TrimSpace(e.RunID) == "" {
		return errors.New("run_id is required")
	}
	row := dbmodel.Run{
		RunID:       e.RunID,
		PanelID:     e.PanelID,
		Status:      e.Status,
		ExitCode:    e.ExitCode,
		Message:     e.Message,
		OutputBytes: e.OutputBytes,
		StartedAt:   e.StartedAt.UTC().Unix(),
		FinishedAt:  e.FinishedAt.UTC().Unix(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":       row.Status,
			"exit_code":    row.ExitCode,
			"message":      row.Message,
			"output_bytes": row.OutputBytes,
			"finished_at":  row.FinishedAt,
		}),
	}).Create(&row).Error
}

// List returns the newest runs first. An empty panelID lists all panels.
func (s *RunStore) List(panelID string, limit int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("run store is not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := s.db.Order("started_at DESC").Order("run_id DESC").Limit(limit)
	if panelID = strings.TrimSpace(panelID); panelID != "" {
		q = q.Where("panel_id = ?", panelID)
	}
	var rows []dbmodel.Run
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0, len(rows))
	for _, row := range rows {
		rec := RunRecord{
			RunID:       row.RunID,
			PanelID:     row.PanelID,
			CommandLine: row.CommandLine,
			Status:      row.Status,
			ExitCode:    row.ExitCode,
			Message:     row.Message,
			OutputBytes: row.OutputBytes,
			StartedAt:   time.Unix(row.StartedAt, 0).UTC(),
		}
		if row.FinishedAt > 0 {
			rec.FinishedAt = time.Unix(row.FinishedAt, 0).UTC()
		}
		out = append(out, rec)
	}
	return out, nil
}

// Subscribe records run events from bus until the returned func is called.
func (s *RunStore) Subscribe(bus *events.Bus) func() {
	stopStarted := bus.SubscribeRunStarted(func(e events.RunStartedEvent) {
		if err := s.Start(e); err != nil {
			s.logger.Warn("record run start failed", "run_id", e.RunID, "err", err)
		}
	})
	stopFinished := bus.SubscribeRunFinished(func(e events.RunFinishedEvent) {
		if err := s.Finish(e); err != nil {
			s.logger.Warn("record run finish failed", "run_id", e.RunID, "err", err)
		}
	})
	return func() {
		stopStarted()
		stopFinished()
	}
}
