// Package model defines shared data structures for the listing service.
package model

import "time"

// Status values mirror the job_status enum in PostgreSQL.
type Status string

const (
	StatusActive   Status = "active"
	StatusDump     Status = "dump"
	StatusInactive Status = "inactive"
)

// Job mirrors a row of the jobs table.
// Descriptive fields are carried as-is; only the lifecycle fields and the
// counters are interpreted by the service.
type Job struct {
	ID             string   `json:"id"`
	ExternalID     string   `json:"externalId"`
	Company        string   `json:"company"`
	Role           string   `json:"role"`
	Location       string   `json:"location"`
	Experience     string   `json:"experience"`
	Description    string   `json:"description"`
	Degree         string   `json:"degree"`
	EmploymentType string   `json:"employmentType"`
	HiringLink     string   `json:"hiringLink"`
	Skills         []string `json:"skills"`
	Keywords       []string `json:"keywords"`

	Status           Status     `json:"status"`
	DatePosted       time.Time  `json:"datePosted"`
	MovedToDumpAt    *time.Time `json:"movedToDumpAt"`
	LastStatusChange time.Time  `json:"lastStatusChange"`
	IsActive         bool       `json:"isActive"`

	Views         int64      `json:"views"`
	Clicks        int64      `json:"clicks"`
	LastViewedAt  *time.Time `json:"lastViewedAt"`
	LastClickedAt *time.Time `json:"lastClickedAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Visitor identifies a unique visit within one day.
type Visitor struct {
	ClientID  string `json:"clientId"`
	UserAgent string `json:"userAgent"`
}

// Bucket is the analytics aggregate of one UTC calendar day.
type Bucket struct {
	Date           time.Time        `json:"date"`
	WebsiteVisits  int64            `json:"websiteVisits"`
	UniqueVisitors []Visitor        `json:"uniqueVisitors"`
	JobViews       map[string]int64 `json:"jobViews"`
	JobClicks      map[string]int64 `json:"jobClicks"`
	DeviceInfo     map[string]int64 `json:"deviceInfo"`
	BrowserInfo    map[string]int64 `json:"browserInfo"`
}

// NewBucket returns an empty bucket for the given day.
func NewBucket(day time.Time) *Bucket {
	return &Bucket{
		Date:           day,
		UniqueVisitors: []Visitor{},
		JobViews:       map[string]int64{},
		JobClicks:      map[string]int64{},
		DeviceInfo:     map[string]int64{},
		BrowserInfo:    map[string]int64{},
	}
}
