package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// InsertTrap stores a trap record and its bindings in one transaction and
// returns the new trap id.
func (s *Store) InsertTrap(ctx context.Context, trap *Received, data []ReceivedData) (int64, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(trap).Error; err != nil {
			return fmt.Errorf("inserting trap: %w", err)
		}
		if len(data) == 0 {
			return nil
		}
		for i := range data {
			data[i].TrapID = trap.ID
		}
		if err := tx.CreateInBatches(data, 100).Error; err != nil {
			return fmt.Errorf("inserting trap data: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return trap.ID, nil
}

// WriteTrapError records a trap that could not be processed.
// sourceIP and trapOID may be empty.
func (s *Store) WriteTrapError(ctx context.Context, message, sourceIP, trapOID string) error {
	trap := Received{
		DateReceived: time.Now(),
		Status:       StatusError,
		StatusDetail: message,
		SourceIP:     sourceIP,
		TrapOID:      trapOID,
	}
	if err := s.db.WithContext(ctx).Create(&trap).Error; err != nil {
		return fmt.Errorf("writing trap error: %w", err)
	}
	return nil
}

// FinalizeTrap records the processing time and the action summary of a trap.
// An empty detail is stored as "No action".
func (s *Store) FinalizeTrap(ctx context.Context, id int64, processTime float64, detail string) error {
	if detail == "" {
		detail = "No action"
	}
	res := s.db.WithContext(ctx).Model(&Received{}).Where("id = ?", id).Updates(map[string]any{
		"process_time":  processTime,
		"status_detail": detail,
	})
	if res.Error != nil {
		return fmt.Errorf("finalizing trap %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("finalizing trap %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetTrap returns a trap record.
func (s *Store) GetTrap(ctx context.Context, id int64) (Received, error) {
	var trap Received
	err := s.db.WithContext(ctx).First(&trap, id).Error
	return trap, notFound(err)
}

// TrapData returns the bindings of a trap in received order.
func (s *Store) TrapData(ctx context.Context, trapID int64) ([]ReceivedData, error) {
	var data []ReceivedData
	err := s.db.WithContext(ctx).Where("trap_id = ?", trapID).Order("id").Find(&data).Error
	return data, err
}

// EraseOldTraps deletes traps received more than days days ago, with their
// bindings. days 0 reads the db_remove_days setting; when it is not set
// nothing is deleted.
func (s *Store) EraseOldTraps(ctx context.Context, days int) (int64, error) {
	if days == 0 {
		value, err := s.GetDBConfig(ctx, "db_remove_days")
		if err == ErrNotFound {
			s.log.Warn("no days specified and no db_remove_days setting, nothing erased")
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		if days, err = strconv.Atoi(value); err != nil {
			return 0, fmt.Errorf("invalid db_remove_days %q: %w", value, err)
		}
	}
	if days <= 0 {
		return 0, fmt.Errorf("invalid number of days %d", days)
	}

	limit := time.Now().AddDate(0, 0, -days)
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old := tx.Model(&Received{}).Select("id").Where("date_received < ?", limit)
		if err := tx.Where("trap_id IN (?)", old).Delete(&ReceivedData{}).Error; err != nil {
			return err
		}
		res := tx.Where("date_received < ?", limit).Delete(&Received{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("erasing traps older than %d days: %w", days, err)
	}
	s.log.Info("old traps erased", "days", days, "deleted", deleted)
	return deleted, nil
}

func (s *Store) trapFilter(ctx context.Context, ip, oid string) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&Received{})
	if ip != "" {
		q = q.Where("source_ip = ?", ip)
	}
	if oid != "" {
		q = q.Where("trap_oid = ?", oid)
	}
	return q
}

// CountTraps counts traps matching a source address and/or a trap OID.
// Without any filter it returns 0.
func (s *Store) CountTraps(ctx context.Context, ip, oid string) (int64, error) {
	if ip == "" && oid == "" {
		return 0, nil
	}
	var n int64
	err := s.trapFilter(ctx, ip, oid).Count(&n).Error
	return n, err
}

// DeleteTraps deletes traps matching a source address and/or a trap OID,
// with their bindings. Without any filter nothing is deleted.
func (s *Store) DeleteTraps(ctx context.Context, ip, oid string) (int64, error) {
	if ip == "" && oid == "" {
		return 0, nil
	}
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := &Store{db: tx, log: s.log}
		ids := scoped.trapFilter(ctx, ip, oid).Select("id")
		if err := tx.Where("trap_id IN (?)", ids).Delete(&ReceivedData{}).Error; err != nil {
			return err
		}
		res := scoped.trapFilter(ctx, ip, oid).Delete(&Received{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}
