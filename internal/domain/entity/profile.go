package entity

import "time"

type Stage string

const (
	StageNew            Stage = "new"
	StageInterested     Stage = "interested"
	StageCollectingInfo Stage = "collecting_info"
	StageHesitant       Stage = "hesitant"
	StageReadyToClose   Stage = "ready_to_close"
	StageNeedsSupport   Stage = "needs_support"
)

func (s Stage) Valid() bool {
	switch s {
	case StageNew, StageInterested, StageCollectingInfo, StageHesitant, StageReadyToClose, StageNeedsSupport:
		return true
	}
	return false
}

type UserProfile struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"first_name,omitempty"`
	City          string    `json:"city,omitempty"`
	HomeValue     int64     `json:"home_value,omitempty"`
	Stage         Stage     `json:"stage"`
	LastMessageID string    `json:"last_message_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewProfile returns the defaults of a user seen for the first time.
func NewProfile(id string) UserProfile {
	return UserProfile{ID: id, Stage: StageNew}
}

// ProfilePatch is a partial update: nil fields are left untouched.
type ProfilePatch struct {
	FirstName     *string
	City          *string
	HomeValue     *int64
	Stage         *Stage
	LastMessageID *string
}

func (p ProfilePatch) Empty() bool {
	return p.FirstName == nil && p.City == nil && p.HomeValue == nil && p.Stage == nil && p.LastMessageID == nil
}

// Merge overlays the non-nil fields of o onto p.
func (p ProfilePatch) Merge(o ProfilePatch) ProfilePatch {
	if o.FirstName != nil {
		p.FirstName = o.FirstName
	}
	if o.City != nil {
		p.City = o.City
	}
	if o.HomeValue != nil {
		p.HomeValue = o.HomeValue
	}
	if o.Stage != nil {
		p.Stage = o.Stage
	}
	if o.LastMessageID != nil {
		p.LastMessageID = o.LastMessageID
	}
	return p
}

// Apply returns a copy of u with the patch applied.
func (p ProfilePatch) Apply(u UserProfile) UserProfile {
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.City != nil {
		u.City = *p.City
	}
	if p.HomeValue != nil {
		u.HomeValue = *p.HomeValue
	}
	if p.Stage != nil {
		u.Stage = *p.Stage
	}
	if p.LastMessageID != nil {
		u.LastMessageID = *p.LastMessageID
	}
	return u
}
