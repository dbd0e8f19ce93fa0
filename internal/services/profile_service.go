package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/pagination"
	pstorage "github.com/Hero-Alpha/KrishiSetu/internal/platform/storage"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/textutil"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

const (
	maxProfileNameLength     = 50
	maxFarmNameLength        = 100
	maxFarmDescriptionLength = 1000
	maxProfileListEntries    = 20
	maxProfileListEntryLen   = 60
	maxSocialLinkLength      = 200
	defaultMaxFarmImageBytes = int64(2 << 20)
	earliestFarmSince        = 1900

	profileLoggerEventSeeded      = "profile.seeded"
	profileLoggerEventImageDelete = "profile.farm_image.delete.failed"
)

var (
	// ErrProfileInvalidInput indicates a profile field failed validation.
	ErrProfileInvalidInput = errors.New("profile: invalid input")
	// ErrProfileNotFound indicates the profile does not exist or is not a public farmer profile.
	ErrProfileNotFound = errors.New("profile: not found")
	// ErrProfileForbidden indicates the caller's role may not use the farmer profile.
	ErrProfileForbidden = errors.New("profile: forbidden")
	// ErrProfileConflict indicates a concurrent write won.
	ErrProfileConflict = errors.New("profile: conflict")
	// ErrProfileUnavailable indicates the backing store is temporarily unreachable.
	ErrProfileUnavailable = errors.New("profile: repository unavailable")
	// ErrProfileImagesDisabled indicates no object storage bucket is configured.
	ErrProfileImagesDisabled = errors.New("profile: image uploads are not configured")
)

var (
	profilePhonePattern   = regexp.MustCompile(`^[0-9+()\-\s]{7,20}$`)
	profilePincodePattern = regexp.MustCompile(`^[0-9]{6}$`)
	clockTimePattern      = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
	weekdays              = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}
	socialNetworks        = []string{"facebook", "instagram", "twitter", "website", "whatsapp", "youtube"}
)

// ProfileServiceDeps bundles constructor inputs for the profile service.
type ProfileServiceDeps struct {
	Users         repositories.UserRepository
	UnitOfWork    repositories.UnitOfWork
	Images        ProductImageStore
	UploadURLTTL  time.Duration
	MaxImageBytes int64
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type profileService struct {
	users         repositories.UserRepository
	unitOfWork    repositories.UnitOfWork
	images        ProductImageStore
	uploadTTL     time.Duration
	maxImageBytes int64
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewProfileService constructs the profile service with the supplied dependencies.
func NewProfileService(deps ProfileServiceDeps) (ProfileService, error) {
	if deps.Users == nil {
		return nil, errors.New("profile service: user repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("profile service: unit of work is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	maxBytes := deps.MaxImageBytes
	if maxBytes <= 0 || maxBytes > defaultMaxFarmImageBytes {
		maxBytes = defaultMaxFarmImageBytes
	}
	return &profileService{
		users:         deps.Users,
		unitOfWork:    deps.UnitOfWork,
		images:        deps.Images,
		uploadTTL:     deps.UploadURLTTL,
		maxImageBytes: maxBytes,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *profileService) GetProfile(ctx context.Context, caller ProfileIdentity) (UserProfile, error) {
	return s.mutate(ctx, caller, false, nil)
}

func (s *profileService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error) {
	return s.mutate(ctx, cmd.Caller, false, func(profile *UserProfile) error {
		if err := applyName(profile, cmd.Name); err != nil {
			return err
		}
		if err := applyFarmName(profile, cmd.FarmName); err != nil {
			return err
		}
		if err := applyPhone(profile, cmd.Phone); err != nil {
			return err
		}
		if cmd.Address != nil {
			address, err := normalizeProfileAddress(*cmd.Address)
			if err != nil {
				return err
			}
			profile.Address = address
		}
		return applyLocation(profile, cmd.Location)
	})
}

func (s *profileService) GetFarmerProfile(ctx context.Context, caller ProfileIdentity) (UserProfile, error) {
	return s.mutate(ctx, caller, true, nil)
}

func (s *profileService) UpdateFarmerProfile(ctx context.Context, cmd UpdateFarmerProfileCommand) (UserProfile, error) {
	var replacedImage string
	profile, err := s.mutate(ctx, cmd.Caller, true, func(profile *UserProfile) error {
		if err := applyName(profile, cmd.Name); err != nil {
			return err
		}
		if err := applyFarmName(profile, cmd.FarmName); err != nil {
			return err
		}
		if err := applyPhone(profile, cmd.Phone); err != nil {
			return err
		}
		if cmd.FarmDescription != nil {
			description := sanitizePlainText(*cmd.FarmDescription)
			if utf8.RuneCountInString(description) > maxFarmDescriptionLength {
				return fmt.Errorf("%w: farm description must be at most %d characters", ErrProfileInvalidInput, maxFarmDescriptionLength)
			}
			profile.FarmDescription = description
		}
		if cmd.FarmSince != nil {
			year := *cmd.FarmSince
			if year != 0 && (year < earliestFarmSince || year > s.clock().Year()) {
				return fmt.Errorf("%w: farmSince must be between %d and the current year", ErrProfileInvalidInput, earliestFarmSince)
			}
			profile.FarmSince = year
		}
		if err := applyLocation(profile, cmd.Location); err != nil {
			return err
		}
		if cmd.BusinessHours != nil {
			hours, err := normalizeBusinessHours(*cmd.BusinessHours)
			if err != nil {
				return err
			}
			profile.BusinessHours = hours
		}
		if cmd.SocialMediaSet {
			social, err := normalizeSocialMedia(cmd.SocialMedia)
			if err != nil {
				return err
			}
			profile.SocialMedia = social
		}
		if cmd.DeliveryAreas != nil {
			areas, err := normalizeProfileList("deliveryAreas", *cmd.DeliveryAreas)
			if err != nil {
				return err
			}
			profile.DeliveryAreas = areas
		}
		if cmd.Certifications != nil {
			certs, err := normalizeProfileList("certifications", *cmd.Certifications)
			if err != nil {
				return err
			}
			profile.Certifications = certs
		}
		if cmd.FarmImageObject != nil {
			previous := profile.FarmImage.ObjectPath
			image, err := s.farmImage(profile.ID, *cmd.FarmImageObject)
			if err != nil {
				return err
			}
			profile.FarmImage = image
			if previous != "" && previous != image.ObjectPath {
				replacedImage = previous
			}
		}
		return nil
	})
	if err != nil {
		return UserProfile{}, err
	}
	if replacedImage != "" && s.images != nil {
		if err := s.images.DeleteObject(ctx, replacedImage); err != nil {
			s.logger(ctx, profileLoggerEventImageDelete, map[string]any{
				"userId": profile.ID,
				"object": replacedImage,
				"error":  err.Error(),
			})
		}
	}
	return profile, nil
}

func (s *profileService) CreateFarmImageUpload(ctx context.Context, cmd FarmImageUploadCommand) (ImageUpload, error) {
	if s.images == nil {
		return ImageUpload{}, ErrProfileImagesDisabled
	}
	if !isFarmerRole(cmd.Caller.Role) {
		return ImageUpload{}, fmt.Errorf("%w: only farmers can upload a farm image", ErrProfileForbidden)
	}
	userID := strings.TrimSpace(cmd.Caller.UserID)
	if userID == "" {
		return ImageUpload{}, fmt.Errorf("%w: user id is required", ErrProfileInvalidInput)
	}
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if !pstorage.ContentTypeAllowed(contentType, imageContentTypes) {
		return ImageUpload{}, fmt.Errorf("%w: only image files are allowed", ErrProfileInvalidInput)
	}
	if cmd.SizeBytes < 0 || cmd.SizeBytes > s.maxImageBytes {
		return ImageUpload{}, fmt.Errorf("%w: image must not exceed %d bytes", ErrProfileInvalidInput, s.maxImageBytes)
	}

	object, err := pstorage.BuildObjectPath(pstorage.PurposeFarmImage, pstorage.PathParams{
		FarmerID:    userID,
		ImageID:     s.newID(),
		FileName:    cmd.FileName,
		ContentType: contentType,
	})
	if err != nil {
		return ImageUpload{}, fmt.Errorf("%w: %v", ErrProfileInvalidInput, err)
	}
	signed, err := s.images.SignedUploadURL(ctx, object, pstorage.UploadOptions{
		ContentType:         contentType,
		AllowedContentTypes: imageContentTypes,
		Size:                cmd.SizeBytes,
		MaxSize:             s.maxImageBytes,
		ExpiresIn:           s.uploadTTL,
	})
	if err != nil {
		if errors.Is(err, pstorage.ErrContentTypeDenied) || errors.Is(err, pstorage.ErrObjectTooLarge) {
			return ImageUpload{}, fmt.Errorf("%w: %v", ErrProfileInvalidInput, err)
		}
		return ImageUpload{}, fmt.Errorf("profile: sign upload: %w", err)
	}
	return ImageUpload{
		ObjectPath: object,
		UploadURL:  signed.URL,
		Method:     signed.Method,
		Headers:    signed.Headers,
		ExpiresAt:  signed.ExpiresAt,
	}, nil
}

func (s *profileService) PublicFarmerProfile(ctx context.Context, farmerID string) (UserProfile, error) {
	farmerID = strings.TrimSpace(farmerID)
	if farmerID == "" {
		return UserProfile{}, ErrProfileNotFound
	}
	profile, err := s.users.FindByID(ctx, farmerID)
	if err != nil {
		return UserProfile{}, s.mapRepositoryError(err)
	}
	if !profile.IsFarmer() {
		return UserProfile{}, fmt.Errorf("%w: %s is not a farmer", ErrProfileNotFound, farmerID)
	}
	return profile, nil
}

// mutate loads the caller's profile inside a transaction, seeding it from the token on first
// use and keeping its role in line with the token. apply runs against the loaded profile; the
// profile is saved only when something changed.
func (s *profileService) mutate(ctx context.Context, caller ProfileIdentity, farmerOnly bool, apply func(*UserProfile) error) (UserProfile, error) {
	userID := strings.TrimSpace(caller.UserID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrProfileInvalidInput)
	}
	role := callerRole(caller.Role)
	if farmerOnly && role != domain.UserRoleFarmer {
		return UserProfile{}, fmt.Errorf("%w: only farmers can access this profile", ErrProfileForbidden)
	}

	var (
		profile UserProfile
		seeded  bool
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		profile, err = s.users.FindByID(txCtx, userID)
		dirty := false
		switch {
		case err == nil:
		case isRepoNotFound(err):
			now := s.clock()
			profile = UserProfile{
				ID:        userID,
				Name:      seedName(caller),
				Email:     strings.ToLower(strings.TrimSpace(caller.Email)),
				Role:      role,
				CreatedAt: now,
				UpdatedAt: now,
			}
			seeded, dirty = true, true
		default:
			return s.mapRepositoryError(err)
		}
		if profile.Role != role {
			profile.Role = role
			dirty = true
		}

		if apply != nil {
			before := profile.Clone()
			if err := apply(&profile); err != nil {
				return err
			}
			if !reflect.DeepEqual(before, profile) {
				dirty = true
			}
		}
		if !dirty {
			return nil
		}
		profile.UpdatedAt = s.clock()
		return s.mapRepositoryError(s.users.Save(txCtx, profile))
	})
	if err != nil {
		return UserProfile{}, err
	}
	if seeded {
		s.logger(ctx, profileLoggerEventSeeded, map[string]any{"userId": userID, "role": string(role)})
	}
	return profile, nil
}

func (s *profileService) farmImage(userID, object string) (domain.ProductImage, error) {
	object = strings.TrimSpace(object)
	if object == "" {
		return domain.ProductImage{}, nil
	}
	if s.images == nil {
		return domain.ProductImage{}, ErrProfileImagesDisabled
	}
	if !strings.HasPrefix(object, pstorage.FarmImagePrefix(userID)) || strings.Contains(object, "..") {
		return domain.ProductImage{}, fmt.Errorf("%w: object path does not belong to the farmer", ErrProfileInvalidInput)
	}
	return domain.ProductImage{URL: s.images.PublicURL(object), ObjectPath: object}, nil
}

func (s *profileService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return fmt.Errorf("%w: %v", ErrProfileInvalidInput, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProfileNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrProfileConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
		}
	}
	return err
}

func callerRole(role string) domain.UserRole {
	if isFarmerRole(role) {
		return domain.UserRoleFarmer
	}
	return domain.UserRoleConsumer
}

func isFarmerRole(role string) bool {
	return strings.EqualFold(strings.TrimSpace(role), string(domain.UserRoleFarmer))
}

func seedName(caller ProfileIdentity) string {
	if name := strings.TrimSpace(caller.Name); name != "" {
		return truncateRunes(name, maxProfileNameLength)
	}
	if local, _, ok := strings.Cut(strings.TrimSpace(caller.Email), "@"); ok && local != "" {
		return truncateRunes(local, maxProfileNameLength)
	}
	return ""
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}

func applyName(profile *UserProfile, name *string) error {
	if name == nil {
		return nil
	}
	value := sanitizePlainText(*name)
	if value == "" {
		return fmt.Errorf("%w: name is required", ErrProfileInvalidInput)
	}
	if utf8.RuneCountInString(value) > maxProfileNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", ErrProfileInvalidInput, maxProfileNameLength)
	}
	profile.Name = value
	return nil
}

func applyFarmName(profile *UserProfile, farmName *string) error {
	if farmName == nil {
		return nil
	}
	value := sanitizePlainText(*farmName)
	if utf8.RuneCountInString(value) > maxFarmNameLength {
		return fmt.Errorf("%w: farm name must be at most %d characters", ErrProfileInvalidInput, maxFarmNameLength)
	}
	if value == "" && profile.IsFarmer() {
		return fmt.Errorf("%w: farm name is required for farmers", ErrProfileInvalidInput)
	}
	profile.FarmName = value
	return nil
}

func applyPhone(profile *UserProfile, phone *string) error {
	if phone == nil {
		return nil
	}
	value := strings.TrimSpace(*phone)
	if value != "" && !profilePhonePattern.MatchString(value) {
		return fmt.Errorf("%w: phone number is invalid", ErrProfileInvalidInput)
	}
	profile.Phone = value
	return nil
}

func applyLocation(profile *UserProfile, location *domain.FarmLocation) error {
	if location == nil {
		return nil
	}
	loc := domain.FarmLocation{
		Address: sanitizePlainText(location.Address),
		City:    sanitizePlainText(location.City),
		State:   sanitizePlainText(location.State),
		Pincode: strings.TrimSpace(location.Pincode),
	}
	if loc.Pincode != "" && !profilePincodePattern.MatchString(loc.Pincode) {
		return fmt.Errorf("%w: pincode must be 6 digits", ErrProfileInvalidInput)
	}
	profile.Location = loc
	return nil
}

func normalizeProfileAddress(address domain.ProfileAddress) (domain.ProfileAddress, error) {
	out := domain.ProfileAddress{
		Street:  sanitizePlainText(address.Street),
		City:    sanitizePlainText(address.City),
		State:   sanitizePlainText(address.State),
		Pincode: strings.TrimSpace(address.Pincode),
	}
	if out.Pincode != "" && !profilePincodePattern.MatchString(out.Pincode) {
		return domain.ProfileAddress{}, fmt.Errorf("%w: pincode must be 6 digits", ErrProfileInvalidInput)
	}
	return out, nil
}

func normalizeBusinessHours(hours domain.BusinessHours) (domain.BusinessHours, error) {
	out := domain.BusinessHours{
		Open:  strings.TrimSpace(hours.Open),
		Close: strings.TrimSpace(hours.Close),
	}
	for _, value := range []string{out.Open, out.Close} {
		if value != "" && !clockTimePattern.MatchString(value) {
			return domain.BusinessHours{}, fmt.Errorf("%w: business hours must use HH:MM", ErrProfileInvalidInput)
		}
	}
	if out.Open != "" && out.Close != "" && out.Close <= out.Open {
		return domain.BusinessHours{}, fmt.Errorf("%w: closing time must be after opening time", ErrProfileInvalidInput)
	}
	for _, day := range hours.Days {
		day = strings.ToLower(strings.TrimSpace(day))
		if len(day) > 3 {
			day = day[:3]
		}
		if !slices.Contains(weekdays, day) {
			return domain.BusinessHours{}, fmt.Errorf("%w: unknown weekday %q", ErrProfileInvalidInput, day)
		}
		if !slices.Contains(out.Days, day) {
			out.Days = append(out.Days, day)
		}
	}
	slices.SortFunc(out.Days, func(a, b string) int {
		return slices.Index(weekdays, a) - slices.Index(weekdays, b)
	})
	return out, nil
}

func normalizeSocialMedia(links map[string]string) (map[string]string, error) {
	lowered := make(map[string]string, len(links))
	for network, link := range links {
		lowered[strings.ToLower(strings.TrimSpace(network))] = link
	}
	compact := textutil.CompactStringMap(lowered)
	for network, link := range compact {
		if !slices.Contains(socialNetworks, network) {
			return nil, fmt.Errorf("%w: unsupported social network %q", ErrProfileInvalidInput, network)
		}
		if utf8.RuneCountInString(link) > maxSocialLinkLength {
			return nil, fmt.Errorf("%w: %s link is too long", ErrProfileInvalidInput, network)
		}
	}
	return compact, nil
}

func normalizeProfileList(field string, values []string) ([]string, error) {
	var out []string
	for _, value := range values {
		value = sanitizePlainText(value)
		if value == "" || slices.Contains(out, value) {
			continue
		}
		if utf8.RuneCountInString(value) > maxProfileListEntryLen {
			return nil, fmt.Errorf("%w: %s entries must be at most %d characters", ErrProfileInvalidInput, field, maxProfileListEntryLen)
		}
		out = append(out, value)
	}
	if len(out) > maxProfileListEntries {
		return nil, fmt.Errorf("%w: %s holds at most %d entries", ErrProfileInvalidInput, field, maxProfileListEntries)
	}
	return out, nil
}
