package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	pfirestore "github.com/Hero-Alpha/KrishiSetu/internal/platform/firestore"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/textutil"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

const usersCollection = "users"

type userDocument struct {
	Name            string               `firestore:"name"`
	Email           string               `firestore:"email"`
	Phone           string               `firestore:"phone"`
	Role            string               `firestore:"role"`
	Address         userAddressDocument  `firestore:"address"`
	FarmName        string               `firestore:"farmName,omitempty"`
	FarmDescription string               `firestore:"farmDescription,omitempty"`
	FarmImage       productImageDocument `firestore:"farmImage"`
	FarmSince       int                  `firestore:"farmSince,omitempty"`
	Location        userAddressDocument  `firestore:"location"`
	BusinessHours   businessHoursDoc     `firestore:"businessHours"`
	SocialMedia     map[string]string    `firestore:"socialMedia,omitempty"`
	DeliveryAreas   []string             `firestore:"deliveryAreas,omitempty"`
	Certifications  []string             `firestore:"certifications,omitempty"`
	CreatedAt       time.Time            `firestore:"createdAt"`
	UpdatedAt       time.Time            `firestore:"updatedAt"`
}

type userAddressDocument struct {
	Street  string `firestore:"street,omitempty"`
	City    string `firestore:"city,omitempty"`
	State   string `firestore:"state,omitempty"`
	Pincode string `firestore:"pincode,omitempty"`
}

type businessHoursDoc struct {
	Open  string   `firestore:"open,omitempty"`
	Close string   `firestore:"close,omitempty"`
	Days  []string `firestore:"days,omitempty"`
}

// UserRepository stores profiles in the users collection keyed by the token subject.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		base: pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil),
	}, nil
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// FindByID loads the profile by user id.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.UserProfile{}, err
	}
	return decodeUser(doc), nil
}

// Save upserts the profile document.
func (r *UserRepository) Save(ctx context.Context, profile domain.UserProfile) error {
	if strings.TrimSpace(profile.ID) == "" {
		return errors.New("profile id is required")
	}
	return r.base.Set(ctx, profile.ID, encodeUser(profile))
}

func encodeUser(p domain.UserProfile) userDocument {
	return userDocument{
		Name:  p.Name,
		Email: p.Email,
		Phone: p.Phone,
		Role:  string(p.Role),
		Address: userAddressDocument{
			Street:  p.Address.Street,
			City:    p.Address.City,
			State:   p.Address.State,
			Pincode: p.Address.Pincode,
		},
		FarmName:        p.FarmName,
		FarmDescription: p.FarmDescription,
		FarmImage:       productImageDocument{URL: p.FarmImage.URL, ObjectPath: p.FarmImage.ObjectPath},
		FarmSince:       p.FarmSince,
		Location: userAddressDocument{
			Street:  p.Location.Address,
			City:    p.Location.City,
			State:   p.Location.State,
			Pincode: p.Location.Pincode,
		},
		BusinessHours: businessHoursDoc{
			Open:  p.BusinessHours.Open,
			Close: p.BusinessHours.Close,
			Days:  append([]string(nil), p.BusinessHours.Days...),
		},
		SocialMedia:    textutil.CompactStringMap(p.SocialMedia),
		DeliveryAreas:  append([]string(nil), p.DeliveryAreas...),
		Certifications: append([]string(nil), p.Certifications...),
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

func decodeUser(doc pfirestore.Document[userDocument]) domain.UserProfile {
	d := doc.Data
	profile := domain.UserProfile{
		ID:    doc.ID,
		Name:  d.Name,
		Email: d.Email,
		Phone: d.Phone,
		Role:  domain.UserRole(d.Role),
		Address: domain.ProfileAddress{
			Street:  d.Address.Street,
			City:    d.Address.City,
			State:   d.Address.State,
			Pincode: d.Address.Pincode,
		},
		FarmName:        d.FarmName,
		FarmDescription: d.FarmDescription,
		FarmImage:       domain.ProductImage{URL: d.FarmImage.URL, ObjectPath: d.FarmImage.ObjectPath},
		FarmSince:       d.FarmSince,
		Location: domain.FarmLocation{
			Address: d.Location.Street,
			City:    d.Location.City,
			State:   d.Location.State,
			Pincode: d.Location.Pincode,
		},
		BusinessHours: domain.BusinessHours{
			Open:  d.BusinessHours.Open,
			Close: d.BusinessHours.Close,
			Days:  append([]string(nil), d.BusinessHours.Days...),
		},
		SocialMedia:    textutil.CompactStringMap(d.SocialMedia),
		DeliveryAreas:  append([]string(nil), d.DeliveryAreas...),
		Certifications: append([]string(nil), d.Certifications...),
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = doc.CreateTime.UTC()
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = doc.UpdateTime.UTC()
	}
	return profile
}
