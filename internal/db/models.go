package db

type Config struct {
	Key       string `gorm:"column:key;primaryKey"`
	Value     string `gorm:"column:value;not null;default:''"`
	UpdatedAt int64  `gorm:"column:updated_at;not null;default:0"`
}

func (Config) TableName() string { return "config" }

type PathHistory struct {
	Path            string `gorm:"column:path;primaryKey"`
	Kind            string `gorm:"column:kind;not null;default:'dir'"`
	FirstAccessedAt int64  `gorm:"column:first_accessed_at;not null"`
	LastAccessedAt  int64  `gorm:"column:last_accessed_at;not null"`
	AccessCount     int    `gorm:"column:access_count;not null"`
}

func (PathHistory) TableName() string { return "path_history" }

type Run struct {
	RunID       string `gorm:"column:run_id;primaryKey"`
	PanelID     string `gorm:"column:panel_id;not null;default:''"`
	CommandLine string `gorm:"column:command_line;not null;default:''"`
	Status      string `gorm:"column:status;not null;default:'running'"`
	ExitCode    int    `gorm:"column:exit_code;not null;default:0"`
	Message     string `gorm:"column:message;not null;default:''"`
	OutputBytes int    `gorm:"column:output_bytes;not null;default:0"`
	StartedAt   int64  `gorm:"column:started_at;not null;default:0"`
	FinishedAt  int64  `gorm:"column:finished_at;not null;default:0"`
}

func (Run) TableName() string { return "runs" }
