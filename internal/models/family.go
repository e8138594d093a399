package models

import "time"

// Family is a shared-credential tenant grouping the personal accounts of its members
type Family struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	AdminIDs     []int64   `json:"admin_ids"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether userID is listed as an administrator of the family
func (f *Family) IsAdmin(userID int64) bool {
	for _, id := range f.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// FamilyWithMembers combines a family with its member profiles
type FamilyWithMembers struct {
	Family  Family `json:"family"`
	Members []User `json:"members"`
}
