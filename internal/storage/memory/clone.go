package memory

import (
	"sort"
	"time"

	"addrdir/backend/internal/domain"
)

// cloneRecord 深拷贝，调用方修改返回值不会影响存储内容。
func cloneRecord(r *domain.AddressRecord) *domain.AddressRecord {
	if r == nil {
		return nil
	}
	c := *r
	if fb, ok := r.Forwarding(); ok {
		c.Binding = &domain.ForwardBinding{
			Targets:      append([]domain.Target(nil), fb.Targets...),
			ForwardQuota: fb.ForwardQuota,
			Autoreply:    cloneAutoreply(fb.Autoreply),
			Disabled:     fb.Disabled,
		}
	}
	return &c
}

func cloneAutoreply(a domain.Autoreply) domain.Autoreply {
	a.Start = cloneTime(a.Start)
	a.End = cloneTime(a.End)
	return a
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// sortRecords 按创建时间排序，时间相同时按 ID。
func sortRecords(records []*domain.AddressRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
