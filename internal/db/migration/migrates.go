package migration

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
)

type step struct {
	name string
	run  func(*Migration) error
}

var (
	steps    []step
	initOnce sync.Once
)

// Migration is passed to each migration step. DB is set by RunAll.
type Migration struct {
	DB   *gorm.DB
	logs []string
}

func (m *Migration) Log(v ...interface{}) {
	m.logs = append(m.logs, fmt.Sprint(v...))
}

func register(name string, fn func(*Migration) error) {
	steps = append(steps, step{name: name, run: fn})
}

// Init registers the built-in data migrations once.
func Init() {
	initOnce.Do(func() {
		register("drop_blank_settings", dropBlankSettings)
		register("close_orphaned_runs", closeOrphanedRuns)
	})
}

// RunAll runs all registered migrations in order. Used for data/behavior one-shots; schema is synced via db.SyncSchema.
func RunAll(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	ctx := &Migration{DB: db}
	for _, s := range steps {
		ctx.logs = nil
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", s.name, err)
		}
	}
	return nil
}

// A blank override means "use the default", which is the same as no row.
func dropBlankSettings(m *Migration) error {
	res := m.DB.Exec(`DELETE FROM config WHERE TRIM(value) = ''`)
	if res.Error != nil {
		return res.Error
	}
	m.Log("dropped blank settings: ", res.RowsAffected)
	return nil
}

// Runs still marked running belong to a previous agentdock process whose
// children are gone.
func closeOrphanedRuns(m *Migration) error {
	res := m.DB.Exec(`UPDATE runs SET status = 'error', message = 'agentdock restarted while the process was running' WHERE status = 'running'`)
	if res.Error != nil {
		return res.Error
	}
	m.Log("closed orphaned runs: ", res.RowsAffected)
	return nil
}
