package model

import "time"

// ClickEvent represents one redirect traversal of a short link. Events
// are append-only: once written to the log they are never updated.
type ClickEvent struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Code      string    `json:"code" gorm:"size:32;index"`
	OwnerID   string    `json:"owner_id,omitempty" gorm:"size:64;index;default:''"`
	IP        string    `json:"ip,omitempty" gorm:"size:64"`
	UserAgent string    `json:"user_agent,omitempty" gorm:"size:512"`
	Timestamp time.Time `json:"timestamp" gorm:"index"`
}

// DayBucket is the UTC calendar day the event falls into. Bucketing is
// derived at aggregation time rather than stored, so the event's own
// timestamp stays authoritative even when events arrive out of order.
func (e *ClickEvent) DayBucket() time.Time {
	t := e.Timestamp.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

const (
	ClickStreamName     = "CLICKS"
	ClickStreamSubject  = "clicks.events"
	ClickConsumerName   = "click-logger"
	ClickStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
