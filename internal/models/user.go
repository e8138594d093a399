package models

import "time"

// Role values. The role is carried in session claims for display only.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// MaxGalleryPhotos is the largest number of photos a user's gallery may hold
const MaxGalleryPhotos = 4

// Profile holds the user-editable part of a member account
type Profile struct {
	FullName     string     `json:"full_name"`
	Relationship string     `json:"relationship"`
	HasChildren  bool       `json:"has_children"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
}

// User represents a personal account inside a family
type User struct {
	ID       int64  `json:"id"`
	FamilyID int64  `json:"family_id"`
	Role     string `json:"role"`
	Profile
	PasswordHash   string    `json:"-"`
	ProfilePhoto   string    `json:"profile_photo,omitempty"`
	PersonalPhotos []string  `json:"personal_photos"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user carries the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// GalleryFull reports whether no further photos can be appended
func (u *User) GalleryFull() bool {
	return len(u.PersonalPhotos) >= MaxGalleryPhotos
}
