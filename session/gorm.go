package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/types"
)

// sessionRow is the sessions table.
type sessionRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	ActiveAgent string `gorm:"size:128;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (sessionRow) TableName() string { return "sessions" }

// messageRow is the messages table; Seq preserves append order per session.
type messageRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"size:64;index:idx_session_seq,priority:1"`
	Seq       int    `gorm:"index:idx_session_seq,priority:2"`
	MessageID string `gorm:"size:64"`
	Role      string `gorm:"size:32"`
	Agent     string `gorm:"size:128"`
	Content   string `gorm:"type:text"`
	CreatedAt time.Time
}

func (messageRow) TableName() string { return "session_messages" }

// GormStore persists sessions in a relational database via GORM.
// Supported drivers: postgres, mysql, sqlite.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenGormStore opens the configured database and migrates the schema.
func OpenGormStore(cfg config.DatabaseConfig, logger *zap.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	store, err := NewGormStore(db, logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewGormStore wraps an open *gorm.DB and migrates the schema.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&sessionRow{}, &messageRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "session_gorm")),
	}, nil
}

func (s *GormStore) Create(ctx context.Context, activeAgent string) (*Session, error) {
	sess := New(activeAgent)
	row := sessionRow{
		ID:          sess.ID,
		ActiveAgent: sess.ActiveAgent,
		CreatedAt:   sess.CreatedAt,
		UpdatedAt:   sess.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, storeErr("create session", err)
	}
	s.logger.Debug("session created",
		zap.String("session_id", sess.ID),
		zap.String("active_agent", activeAgent),
	)
	return sess, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*Session, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, storeErr("get session", err)
	}

	var msgRows []messageRow
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", id).
		Order("seq asc").
		Find(&msgRows).Error; err != nil {
		return nil, storeErr("get messages", err)
	}

	sess := &Session{
		ID:          row.ID,
		ActiveAgent: row.ActiveAgent,
		Messages:    make([]types.Message, 0, len(msgRows)),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	for _, m := range msgRows {
		sess.Messages = append(sess.Messages, types.Message{
			ID:        m.MessageID,
			Role:      types.Role(m.Role),
			Agent:     m.Agent,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	return sess, nil
}

func (s *GormStore) AppendMessage(ctx context.Context, id string, msg types.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionRow
		err := tx.First(&row, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(id)
		}
		if err != nil {
			return storeErr("get session", err)
		}

		var seq int64
		if err := tx.Model(&messageRow{}).
			Where("session_id = ?", id).
			Count(&seq).Error; err != nil {
			return storeErr("count messages", err)
		}

		m := messageRow{
			SessionID: id,
			Seq:       int(seq),
			MessageID: msg.ID,
			Role:      string(msg.Role),
			Agent:     msg.Agent,
			Content:   msg.Content,
			CreatedAt: msg.Timestamp,
		}
		if err := tx.Create(&m).Error; err != nil {
			return storeErr("append message", err)
		}

		return tx.Model(&sessionRow{}).
			Where("id = ?", id).
			Update("updated_at", time.Now().UTC()).Error
	})
}

func (s *GormStore) SetActiveAgent(ctx context.Context, id, agent string) error {
	res := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"active_agent": agent,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return storeErr("set active agent", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(id)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&sessionRow{}, "id = ?", id)
		if res.Error != nil {
			return storeErr("delete session", res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound(id)
		}
		return tx.Delete(&messageRow{}, "session_id = ?", id).Error
	})
}

func (s *GormStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&sessionRow{}).
		Order("id asc").
		Pluck("id", &ids).Error; err != nil {
		return nil, storeErr("list sessions", err)
	}
	return ids, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func storeErr(op string, err error) error {
	return types.NewError(types.ErrStoreUnavailable, op+" failed").
		WithCause(err).WithRetryable(true)
}

var _ Store = (*GormStore)(nil)
