package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"addrdir/backend/internal/config"
	"addrdir/backend/internal/domain"
	"addrdir/backend/internal/storage"
)

// Store 基于 GORM 的地址目录存储（PostgreSQL / MySQL / SQLite）
type Store struct {
	db *gorm.DB
}

// NewStore 根据数据库配置创建存储实例
func NewStore(cfg *config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres":
		pgConfig := postgres.Config{DSN: cfg.DSN}
		if cfg.Driver == "pq" {
			// lib/pq 注册的 database/sql 驱动名
			pgConfig.DriverName = "postgres"
		}
		dialector = postgres.New(pgConfig)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	store, err := NewStoreWithDialector(dialector)
	if err != nil {
		return nil, err
	}

	// 配置连接池
	sqlDB, err := store.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return store, nil
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector) (*Store, error) {
	// 配置 GORM
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent), // 静默模式
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	// 连接数据库
	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{db: db}

	// 自动迁移数据库表
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&addressRow{},
		&userRow{},
	)
}

// ========== Directory Repository ==========

// FindByCanonicalKey 根据规范查找键获取地址
func (s *Store) FindByCanonicalKey(ctx context.Context, key string) (*domain.AddressRecord, error) {
	var row addressRow
	err := s.db.WithContext(ctx).Where("canonical_key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return row.toRecord()
}

// FindByID 根据 ID 获取地址
func (s *Store) FindByID(ctx context.Context, id string) (*domain.AddressRecord, error) {
	var row addressRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return row.toRecord()
}

// FindManyByCanonicalKeys 一次查询批量获取地址
func (s *Store) FindManyByCanonicalKeys(ctx context.Context, keys []string) ([]*domain.AddressRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var rows []addressRow
	if err := s.db.WithContext(ctx).Where("canonical_key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toRecords(rows)
}

// ListByUser 返回指定用户的全部地址
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*domain.AddressRecord, error) {
	var rows []addressRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows)
}

// InsertUnique 插入新地址，唯一索引冲突时返回 storage.ErrDuplicateKey
func (s *Store) InsertUnique(ctx context.Context, record *domain.AddressRecord) error {
	row, err := fromRecord(record)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if isDuplicateKey(err) {
			return storage.ErrDuplicateKey
		}
		return err
	}
	return nil
}

// UpdateForwarding 更新转发地址字段
func (s *Store) UpdateForwarding(ctx context.Context, id string, update storage.ForwardingUpdate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 行锁保证自动回复补丁基于最新值合并（SQLite 忽略该子句，写事务本身串行）
		var row addressRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id IS NULL", id).
			First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrNotFound
			}
			return err
		}

		values := make(map[string]interface{})
		if update.Targets != nil {
			data, err := json.Marshal(*update.Targets)
			if err != nil {
				return err
			}
			values["targets"] = string(data)
		}
		if update.ForwardQuota != nil {
			values["forward_quota"] = *update.ForwardQuota
		}
		if update.Autoreply != nil {
			var current domain.Autoreply
			if row.Autoreply != "" {
				if err := json.Unmarshal([]byte(row.Autoreply), &current); err != nil {
					return fmt.Errorf("decode autoreply of %s: %w", row.ID, err)
				}
			}
			merged, err := update.Autoreply.Apply(current)
			if err != nil {
				return err
			}
			data, err := json.Marshal(merged)
			if err != nil {
				return err
			}
			values["autoreply"] = string(data)
		}
		if update.Disabled != nil {
			values["disabled"] = *update.Disabled
		}
		if len(values) == 0 {
			return nil
		}

		return tx.Model(&addressRow{}).Where("id = ?", id).Updates(values).Error
	})
}

// Delete 删除地址
func (s *Store) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&addressRow{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ========== User Repository ==========

// GetUser 根据 ID 获取用户
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &domain.User{ID: row.ID, DefaultAddress: row.Address}, nil
}

// SetDefaultAddress 更新用户主地址
func (s *Store) SetDefaultAddress(ctx context.Context, userID, address string) error {
	var row userRow
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return storage.ErrUserNotFound
		}
		return err
	}
	return s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", userID).Update("address", address).Error
}

// SaveUser 写入或覆盖用户行，供管理命令导入外部用户
func (s *Store) SaveUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		return errors.New("user ID is required")
	}
	return s.db.WithContext(ctx).Save(&userRow{ID: user.ID, Address: user.DefaultAddress}).Error
}

// ========== 工具方法 ==========

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// isDuplicateKey 判断是否为唯一索引冲突
//
// GORM 的 TranslateError 覆盖了大部分情况，这里再按驱动错误码兜底。
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}

	return false
}
