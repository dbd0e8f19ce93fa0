package domain

import (
	"maps"
	"slices"
	"time"
)

// UserRole mirrors the role claim a profile was created with.
type UserRole string

const (
	UserRoleConsumer UserRole = "consumer"
	UserRoleFarmer   UserRole = "farmer"
)

// Valid reports whether the role is a marketplace participant role.
func (r UserRole) Valid() bool { return r == UserRoleConsumer || r == UserRoleFarmer }

// ProfileAddress is the postal address kept on a profile.
type ProfileAddress struct {
	Street  string
	City    string
	State   string
	Pincode string
}

// FarmLocation places a farm for consumers browsing nearby produce.
type FarmLocation struct {
	Address string
	City    string
	State   string
	Pincode string
}

// BusinessHours describes when a farm accepts pickups and calls.
type BusinessHours struct {
	Open  string
	Close string
	Days  []string
}

// UserProfile is the marketplace profile of an authenticated user. Farm fields stay empty for
// consumers.
type UserProfile struct {
	ID      string
	Name    string
	Email   string
	Phone   string
	Role    UserRole
	Address ProfileAddress

	FarmName        string
	FarmDescription string
	FarmImage       ProductImage
	FarmSince       int
	Location        FarmLocation
	BusinessHours   BusinessHours
	SocialMedia     map[string]string
	DeliveryAreas   []string
	Certifications  []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFarmer reports whether the profile belongs to a seller.
func (p UserProfile) IsFarmer() bool { return p.Role == UserRoleFarmer }

// Clone returns a deep copy safe to mutate.
func (p UserProfile) Clone() UserProfile {
	p.BusinessHours.Days = slices.Clone(p.BusinessHours.Days)
	p.DeliveryAreas = slices.Clone(p.DeliveryAreas)
	p.Certifications = slices.Clone(p.Certifications)
	p.SocialMedia = maps.Clone(p.SocialMedia)
	return p
}
