package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"addrdir/backend/internal/domain"
)

// addressRow 地址表的行结构
//
// 用户地址 user_id 非空且转发字段为空；转发地址 user_id 为空。
type addressRow struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	Address      string    `gorm:"type:varchar(255);not null"`
	CanonicalKey string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	UserID       *string   `gorm:"type:varchar(36);index"`
	Targets      string    `gorm:"type:text"` // JSON 数组
	ForwardQuota int       `gorm:"not null;default:0"`
	Autoreply    string    `gorm:"type:text"` // JSON 对象
	Disabled     bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"index"`
}

// TableName 表名
func (addressRow) TableName() string {
	return "addresses"
}

// userRow 用户表中本系统关心的列
type userRow struct {
	ID      string `gorm:"primaryKey;type:varchar(36)"`
	Address string `gorm:"type:varchar(255)"`
}

// TableName 表名
func (userRow) TableName() string {
	return "users"
}

func fromRecord(r *domain.AddressRecord) (*addressRow, error) {
	row := &addressRow{
		ID:           r.ID,
		Address:      r.Address,
		CanonicalKey: r.CanonicalKey,
		CreatedAt:    r.CreatedAt,
	}

	switch b := r.Binding.(type) {
	case domain.UserBinding:
		userID := b.UserID
		row.UserID = &userID
	case *domain.ForwardBinding:
		targets, err := json.Marshal(b.Targets)
		if err != nil {
			return nil, err
		}
		autoreply, err := json.Marshal(b.Autoreply)
		if err != nil {
			return nil, err
		}
		row.Targets = string(targets)
		row.Autoreply = string(autoreply)
		row.ForwardQuota = b.ForwardQuota
		row.Disabled = b.Disabled
	default:
		return nil, fmt.Errorf("address %s has no binding", r.ID)
	}

	return row, nil
}

func (row *addressRow) toRecord() (*domain.AddressRecord, error) {
	record := &domain.AddressRecord{
		ID:           row.ID,
		Address:      row.Address,
		CanonicalKey: row.CanonicalKey,
		CreatedAt:    row.CreatedAt,
	}

	if row.UserID != nil {
		record.Binding = domain.UserBinding{UserID: *row.UserID}
		return record, nil
	}

	fb := &domain.ForwardBinding{
		ForwardQuota: row.ForwardQuota,
		Disabled:     row.Disabled,
	}
	if row.Targets != "" {
		if err := json.Unmarshal([]byte(row.Targets), &fb.Targets); err != nil {
			return nil, fmt.Errorf("decode targets of %s: %w", row.ID, err)
		}
	}
	if row.Autoreply != "" {
		if err := json.Unmarshal([]byte(row.Autoreply), &fb.Autoreply); err != nil {
			return nil, fmt.Errorf("decode autoreply of %s: %w", row.ID, err)
		}
	}
	record.Binding = fb
	return record, nil
}

func toRecords(rows []addressRow) ([]*domain.AddressRecord, error) {
	records := make([]*domain.AddressRecord, 0, len(rows))
	for i := range rows {
		record, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
