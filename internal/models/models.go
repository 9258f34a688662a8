package models

import (
	"time"
)

type User struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Email              string    `gorm:"uniqueIndex" json:"email"`
	Password           string    `json:"-"`
	Role               string    `json:"role"` // admin|user
	MustChangePassword bool      `json:"mustChangePassword"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Bucket is a per-user registration of an S3-compatible bucket.
// Display name is unique within the owning user. AccessKeyID and
// SecretAccessKey hold sealed ciphertext (see internal/secret); they are
// opened only when a storage client is built and never serialized.
type Bucket struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"index;not null" json:"userId"`
	Name            string     `gorm:"not null" json:"name"`
	Provider        string     `gorm:"not null" json:"provider"` // s3|r2
	BucketName      string     `gorm:"not null" json:"bucketName"`
	Region          string     `json:"region"`   // s3 only
	Endpoint        string     `json:"endpoint"` // required for r2
	AccessKeyID     string     `json:"-"`
	SecretAccessKey string     `json:"-"`
	PublicURL       string     `json:"publicUrl"`
	IsActive        bool       `json:"isActive"` // UI default-selection hint, not an access gate
	LastConnectedAt *time.Time `json:"lastConnectedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Persistent observability models

type LogEntry struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	Time   time.Time `json:"time"`
	Level  string    `json:"level"`
	Msg    string    `json:"msg"`
	Fields string    `json:"fields"` // JSON string of fields
}

type TraceRow struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	UserEmail  string    `json:"userEmail"`
	UserAgent  string    `json:"userAgent"`
	RemoteIP   string    `json:"remoteIp"`
	ReqBytes   int64     `json:"reqBytes"`
	RespBytes  int64     `json:"respBytes"`
	Started    time.Time `json:"started"`
	Ended      time.Time `json:"ended"`
	DurationNs int64     `json:"durationNs"`
}

type TraceEventRow struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	TraceID string    `gorm:"index" json:"traceId"`
	Time    time.Time `json:"time"`
	Name    string    `json:"name"`
	Fields  string    `json:"fields"` // JSON string of fields
}
