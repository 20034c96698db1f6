package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/paths"
)

// recordModel is the GORM model for the session_records table
type recordModel struct {
	ID           string    `gorm:"primaryKey"`
	Name         string    `gorm:"not null;default:''"`
	ModelID      string    `gorm:"default:''"`
	ProviderID   string    `gorm:"default:''"`
	ProjectPath  string    `gorm:"not null;index:idx_project_path"`
	Status       string    `gorm:"not null;check:status IN ('active','paused','reconnecting','closed')"`
	TerminalType string    `gorm:"default:''"`
	CreatedAt    time.Time `gorm:"not null;index:idx_created_at"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (recordModel) TableName() string { return "session_records" }

func toModel(rec Record) recordModel {
	return recordModel{
		ID:           rec.ID,
		Name:         rec.Name,
		ModelID:      rec.ModelID,
		ProviderID:   rec.ProviderID,
		ProjectPath:  rec.ProjectPath,
		Status:       string(rec.Status),
		TerminalType: rec.TerminalType,
		CreatedAt:    rec.CreatedAt.UTC(),
		UpdatedAt:    rec.UpdatedAt.UTC(),
	}
}

func (m recordModel) toRecord() Record {
	return Record{
		ID:           m.ID,
		Name:         m.Name,
		ModelID:      m.ModelID,
		ProviderID:   m.ProviderID,
		ProjectPath:  m.ProjectPath,
		Status:       Status(m.Status),
		TerminalType: m.TerminalType,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// SQLiteStore implements Store using GORM over SQLite
type SQLiteStore struct {
	db *gorm.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	path, err := paths.Expand(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  &zapGormLogger{logger: logger, level: gormlogger.Warn},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get database handle: %v", ErrUnavailable, err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if err := db.Exec(pragma).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("%w: failed to configure database (%s): %v", ErrUnavailable, pragma, err)
		}
	}

	if err := db.AutoMigrate(&recordModel{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: failed to migrate schema: %v", ErrUnavailable, err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	model := toModel(rec)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrUnavailable, rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	var model recordModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: get %s: %v", ErrUnavailable, id, err)
	}
	return model.toRecord(), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&recordModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrUnavailable, id, err)
	}
	return nil
}

func (s *SQLiteStore) ListByProject(ctx context.Context, projectPath string) ([]Record, error) {
	var models []recordModel
	q := s.db.WithContext(ctx).Order("created_at ASC, id ASC")
	if projectPath != "" {
		q = q.Where("project_path = ?", projectPath)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrUnavailable, err)
	}

	out := make([]Record, 0, len(models))
	for _, m := range models {
		out = append(out, m.toRecord())
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// zapGormLogger routes GORM logs through zap
type zapGormLogger struct {
	logger *zap.Logger
	level  gormlogger.LogLevel
}

func (l *zapGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &zapGormLogger{logger: l.logger, level: level}
}

func (l *zapGormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *zapGormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *zapGormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.logger.Error(fmt.Sprintf(msg, data...))
	}
}

func (l *zapGormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.logger.Error("Store query failed",
			zap.Error(err), zap.Duration("duration", elapsed), zap.String("sql", sql), zap.Int64("rows", rows))
	case elapsed > 200*time.Millisecond && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.logger.Warn("Slow store query",
			zap.Duration("duration", elapsed), zap.String("sql", sql), zap.Int64("rows", rows))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.logger.Debug("Store query", zap.Duration("duration", elapsed), zap.String("sql", sql), zap.Int64("rows", rows))
	}
}
