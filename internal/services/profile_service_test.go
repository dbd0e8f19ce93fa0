package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories/memory"
)

func newProfileFixture(t *testing.T, images ProductImageStore) (ProfileService, *memory.Store, *time.Time) {
	t.Helper()
	store := memory.NewStore()
	now := testNow
	var seq int
	svc, err := NewProfileService(ProfileServiceDeps{
		Users:      store.Users(),
		UnitOfWork: store,
		Images:     images,
		Clock:      func() time.Time { return now },
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("IMG%03d", seq)
		},
	})
	if err != nil {
		t.Fatalf("new profile service: %v", err)
	}
	return svc, store, &now
}

var (
	farmerCaller   = ProfileIdentity{UserID: "farmer-1", Email: "Ravi@Example.com", Name: "Ravi Patil", Role: "farmer"}
	consumerCaller = ProfileIdentity{UserID: "consumer-1", Email: "asha@example.com", Role: "consumer"}
)

func TestGetProfileSeedsFromTokenOnce(t *testing.T) {
	svc, store, now := newProfileFixture(t, nil)
	ctx := context.Background()

	profile, err := svc.GetProfile(ctx, consumerCaller)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.Name != "asha" || profile.Email != "asha@example.com" || profile.Role != domain.UserRoleConsumer {
		t.Fatalf("unexpected seeded profile %#v", profile)
	}
	if !profile.CreatedAt.Equal(testNow) {
		t.Fatalf("expected created at %v, got %v", testNow, profile.CreatedAt)
	}

	*now = testNow.Add(time.Hour)
	again, err := svc.GetProfile(ctx, consumerCaller)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if !again.UpdatedAt.Equal(testNow) {
		t.Fatalf("read without changes must not touch updatedAt, got %v", again.UpdatedAt)
	}

	promoted := consumerCaller
	promoted.Role = "farmer"
	synced, err := svc.GetProfile(ctx, promoted)
	if err != nil {
		t.Fatalf("get after role change: %v", err)
	}
	if synced.Role != domain.UserRoleFarmer || !synced.UpdatedAt.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("expected role synced from token, got %#v", synced)
	}
	stored, err := store.Users().FindByID(ctx, "consumer-1")
	if err != nil || stored.Role != domain.UserRoleFarmer {
		t.Fatalf("expected stored farmer role, got %#v err=%v", stored, err)
	}
}

func TestUpdateProfileAppliesEditableFields(t *testing.T) {
	svc, _, _ := newProfileFixture(t, nil)
	ctx := context.Background()

	profile, err := svc.UpdateProfile(ctx, UpdateProfileCommand{
		Caller:  consumerCaller,
		Name:    ptr("  <b>Asha</b> Rao "),
		Phone:   ptr("+91 98765 43210"),
		Address: &domain.ProfileAddress{Street: "4 MG Road", City: "Pune", Pincode: "411001"},
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if profile.Name != "Asha Rao" || profile.Phone != "+91 98765 43210" || profile.Address.City != "Pune" {
		t.Fatalf("unexpected profile %#v", profile)
	}
	if profile.FarmName != "" || profile.Location != (domain.FarmLocation{}) {
		t.Fatalf("absent fields must stay untouched: %#v", profile)
	}

	tests := []struct {
		name string
		cmd  UpdateProfileCommand
	}{
		{name: "blank name", cmd: UpdateProfileCommand{Caller: consumerCaller, Name: ptr("   ")}},
		{name: "bad phone", cmd: UpdateProfileCommand{Caller: consumerCaller, Phone: ptr("call me")}},
		{name: "bad pincode", cmd: UpdateProfileCommand{Caller: consumerCaller, Address: &domain.ProfileAddress{Pincode: "41"}}},
		{name: "bad location pincode", cmd: UpdateProfileCommand{Caller: consumerCaller, Location: &domain.FarmLocation{Pincode: "abcdef"}}},
		{name: "farmer clears farm name", cmd: UpdateProfileCommand{Caller: farmerCaller, FarmName: ptr(" ")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.UpdateProfile(ctx, tc.cmd); !errors.Is(err, ErrProfileInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}

	after, err := svc.GetProfile(ctx, consumerCaller)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if after.Name != "Asha Rao" || after.Address.Pincode != "411001" {
		t.Fatalf("rejected updates must not persist: %#v", after)
	}
}

func TestFarmerProfileRequiresFarmerRole(t *testing.T) {
	svc, _, _ := newProfileFixture(t, &fakeImageStore{})
	ctx := context.Background()

	if _, err := svc.GetFarmerProfile(ctx, consumerCaller); !errors.Is(err, ErrProfileForbidden) {
		t.Fatalf("expected forbidden for consumer read, got %v", err)
	}
	if _, err := svc.UpdateFarmerProfile(ctx, UpdateFarmerProfileCommand{Caller: consumerCaller, FarmDescription: ptr("x")}); !errors.Is(err, ErrProfileForbidden) {
		t.Fatalf("expected forbidden for consumer update, got %v", err)
	}
	if _, err := svc.CreateFarmImageUpload(ctx, FarmImageUploadCommand{Caller: consumerCaller, FileName: "a.png", ContentType: "image/png", SizeBytes: 10}); !errors.Is(err, ErrProfileForbidden) {
		t.Fatalf("expected forbidden for consumer upload, got %v", err)
	}
}

func TestUpdateFarmerProfileNormalisesFarmFields(t *testing.T) {
	svc, _, _ := newProfileFixture(t, &fakeImageStore{})
	ctx := context.Background()

	since := 2015
	areas := []string{" Nashik ", "Pune", "Nashik", ""}
	profile, err := svc.UpdateFarmerProfile(ctx, UpdateFarmerProfileCommand{
		Caller:          farmerCaller,
		FarmName:        ptr("Green Acres"),
		FarmDescription: ptr("<script>x</script>Organic millets"),
		FarmSince:       &since,
		BusinessHours:   &domain.BusinessHours{Open: "06:00", Close: "18:30", Days: []string{"Wednesday", "mon", "MON"}},
		SocialMedia:     map[string]string{" Instagram ": " @greenacres ", "website": " "},
		SocialMediaSet:  true,
		DeliveryAreas:   &areas,
	})
	if err != nil {
		t.Fatalf("update farmer profile: %v", err)
	}
	if profile.FarmDescription != "Organic millets" || profile.FarmSince != 2015 {
		t.Fatalf("unexpected farm fields %#v", profile)
	}
	if got := profile.BusinessHours.Days; len(got) != 2 || got[0] != "mon" || got[1] != "wed" {
		t.Fatalf("unexpected business days %v", got)
	}
	if len(profile.SocialMedia) != 1 || profile.SocialMedia["instagram"] != "@greenacres" {
		t.Fatalf("unexpected social media %v", profile.SocialMedia)
	}
	if len(profile.DeliveryAreas) != 2 || profile.DeliveryAreas[0] != "Nashik" {
		t.Fatalf("unexpected delivery areas %v", profile.DeliveryAreas)
	}

	future := 2030
	tests := []struct {
		name string
		cmd  UpdateFarmerProfileCommand
	}{
		{name: "future farmSince", cmd: UpdateFarmerProfileCommand{Caller: farmerCaller, FarmSince: &future}},
		{name: "closing before opening", cmd: UpdateFarmerProfileCommand{Caller: farmerCaller, BusinessHours: &domain.BusinessHours{Open: "18:00", Close: "06:00"}}},
		{name: "bad clock time", cmd: UpdateFarmerProfileCommand{Caller: farmerCaller, BusinessHours: &domain.BusinessHours{Open: "6am"}}},
		{name: "unknown weekday", cmd: UpdateFarmerProfileCommand{Caller: farmerCaller, BusinessHours: &domain.BusinessHours{Days: []string{"funday"}}}},
		{name: "unknown network", cmd: UpdateFarmerProfileCommand{Caller: farmerCaller, SocialMedia: map[string]string{"myspace": "x"}, SocialMediaSet: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.UpdateFarmerProfile(ctx, tc.cmd); !errors.Is(err, ErrProfileInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestFarmImageUploadAndReplace(t *testing.T) {
	images := &fakeImageStore{}
	svc, _, _ := newProfileFixture(t, images)
	ctx := context.Background()

	upload, err := svc.CreateFarmImageUpload(ctx, FarmImageUploadCommand{
		Caller:      farmerCaller,
		FileName:    "barn.webp",
		ContentType: "image/webp",
		SizeBytes:   1024,
	})
	if err != nil {
		t.Fatalf("create upload: %v", err)
	}
	if upload.ObjectPath != "farmers/farmer-1/images/img001.webp" || upload.Method != "PUT" {
		t.Fatalf("unexpected upload %#v", upload)
	}

	if _, err := svc.CreateFarmImageUpload(ctx, FarmImageUploadCommand{Caller: farmerCaller, FileName: "notes.pdf", ContentType: "application/pdf", SizeBytes: 10}); !errors.Is(err, ErrProfileInvalidInput) {
		t.Fatalf("expected invalid content type, got %v", err)
	}
	if _, err := svc.CreateFarmImageUpload(ctx, FarmImageUploadCommand{Caller: farmerCaller, FileName: "big.jpg", ContentType: "image/jpeg", SizeBytes: 3 << 20}); !errors.Is(err, ErrProfileInvalidInput) {
		t.Fatalf("expected oversized upload to be rejected, got %v", err)
	}

	profile, err := svc.UpdateFarmerProfile(ctx, UpdateFarmerProfileCommand{Caller: farmerCaller, FarmImageObject: ptr(upload.ObjectPath)})
	if err != nil {
		t.Fatalf("attach farm image: %v", err)
	}
	if profile.FarmImage.URL != "https://cdn.example/"+upload.ObjectPath {
		t.Fatalf("unexpected farm image %#v", profile.FarmImage)
	}

	if _, err := svc.UpdateFarmerProfile(ctx, UpdateFarmerProfileCommand{Caller: farmerCaller, FarmImageObject: ptr("farmers/farmer-2/images/x.webp")}); !errors.Is(err, ErrProfileInvalidInput) {
		t.Fatalf("expected foreign object to be rejected, got %v", err)
	}
	if _, err := svc.UpdateFarmerProfile(ctx, UpdateFarmerProfileCommand{Caller: farmerCaller, FarmImageObject: ptr("farmers/farmer-1/images/../../farmer-2/x.webp")}); !errors.Is(err, ErrProfileInvalidInput) {
		t.Fatalf("expected traversal to be rejected, got %v", err)
	}

	if _, err := svc.UpdateFarmerProfile(ctx, UpdateFarmerProfileCommand{Caller: farmerCaller, FarmImageObject: ptr("farmers/farmer-1/images/img002.webp")}); err != nil {
		t.Fatalf("replace farm image: %v", err)
	}
	if len(images.deleted) != 1 || images.deleted[0] != upload.ObjectPath {
		t.Fatalf("expected previous image deleted, got %v", images.deleted)
	}
}

func TestFarmImageUploadDisabledWithoutBucket(t *testing.T) {
	svc, _, _ := newProfileFixture(t, nil)
	_, err := svc.CreateFarmImageUpload(context.Background(), FarmImageUploadCommand{Caller: farmerCaller, FileName: "a.png", ContentType: "image/png", SizeBytes: 1})
	if !errors.Is(err, ErrProfileImagesDisabled) {
		t.Fatalf("expected images disabled, got %v", err)
	}
}

func TestPublicFarmerProfileHidesNonFarmers(t *testing.T) {
	svc, _, _ := newProfileFixture(t, nil)
	ctx := context.Background()

	if _, err := svc.UpdateFarmerProfile(ctx, UpdateFarmerProfileCommand{Caller: farmerCaller, FarmName: ptr("Green Acres")}); err != nil {
		t.Fatalf("seed farmer: %v", err)
	}
	if _, err := svc.GetProfile(ctx, consumerCaller); err != nil {
		t.Fatalf("seed consumer: %v", err)
	}

	farmer, err := svc.PublicFarmerProfile(ctx, "farmer-1")
	if err != nil {
		t.Fatalf("public profile: %v", err)
	}
	if farmer.FarmName != "Green Acres" {
		t.Fatalf("unexpected farmer %#v", farmer)
	}
	for _, id := range []string{"consumer-1", "missing", " "} {
		if _, err := svc.PublicFarmerProfile(ctx, id); !errors.Is(err, ErrProfileNotFound) {
			t.Fatalf("expected not found for %q, got %v", id, err)
		}
	}
}
