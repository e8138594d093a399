package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFamilyIsAdmin(t *testing.T) {
	family := Family{ID: 1, Name: "Smith Family", AdminIDs: []int64{3, 7}}

	tests := []struct {
		name   string
		userID int64
		want   bool
	}{
		{name: "first admin", userID: 3, want: true},
		{name: "second admin", userID: 7, want: true},
		{name: "member", userID: 4, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := family.IsAdmin(tt.userID); got != tt.want {
				t.Errorf("Family.IsAdmin(%d) = %v, want %v", tt.userID, got, tt.want)
			}
		})
	}
}

func TestUserGalleryFull(t *testing.T) {
	tests := []struct {
		name   string
		photos []string
		want   bool
	}{
		{name: "empty", photos: nil, want: false},
		{name: "three photos", photos: []string{"a", "b", "c"}, want: false},
		{name: "four photos", photos: []string{"a", "b", "c", "d"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{PersonalPhotos: tt.photos}
			if got := u.GalleryFull(); got != tt.want {
				t.Errorf("User.GalleryFull() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPasswordHashesNeverSerialised(t *testing.T) {
	u := User{ID: 1, FamilyID: 2, Role: RoleAdmin, PasswordHash: "$2a$12$secret",
		Profile: Profile{FullName: "Alice", Relationship: "Parent"}}
	f := Family{ID: 2, Name: "Smith Family", PasswordHash: "$2a$12$family"}

	for name, v := range map[string]any{"user": u, "family": f} {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", name, err)
		}
		if strings.Contains(string(data), "$2a$12$") {
			t.Errorf("%s JSON leaks password hash: %s", name, data)
		}
	}

	data, _ := json.Marshal(u)
	if !strings.Contains(string(data), `"full_name":"Alice"`) {
		t.Errorf("embedded profile not flattened: %s", data)
	}
}
