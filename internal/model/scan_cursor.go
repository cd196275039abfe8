package model

import "time"

// ScanCursor is the persisted high-water mark of a poller.
type ScanCursor struct {
	Name      string `gorm:"primaryKey;size:64"`
	Value     int64  `gorm:"not null"`
	UpdatedAt time.Time
}
