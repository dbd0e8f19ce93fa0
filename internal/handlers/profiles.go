package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/auth"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/httpx"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

const maxProfileBodySize = 16 * 1024

var (
	errNoEditableFields = errors.New("no editable fields supplied")

	basicProfileFields  = []string{"name", "farmName", "phone", "address", "location"}
	farmerProfileFields = []string{
		"name", "farmName", "phone", "farmDescription", "farmSince", "location", "businessHours",
		"socialMedia", "deliveryAreas", "certifications", "farmImageObject",
	}
)

// ProfileHandlers serves the caller's own profile and the farmer profile pages.
type ProfileHandlers struct {
	authn    *auth.Authenticator
	profiles services.ProfileService
}

// NewProfileHandlers constructs a new ProfileHandlers instance.
func NewProfileHandlers(authn *auth.Authenticator, profiles services.ProfileService) *ProfileHandlers {
	return &ProfileHandlers{authn: authn, profiles: profiles}
}

// UserRoutes registers the /users endpoints.
func (h *ProfileHandlers) UserRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(user chi.Router) {
		user.Use(h.require())
		user.Get("/profile", h.getProfile)
		user.Put("/profile", h.updateProfile)
	})
}

// FarmerProfileRoutes registers the /profile endpoints.
func (h *ProfileHandlers) FarmerProfileRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/farmer/{farmerID}/public", h.getPublicFarmerProfile)

	r.Group(func(farmer chi.Router) {
		farmer.Use(h.require(auth.RoleFarmer))
		farmer.Get("/farmer", h.getFarmerProfile)
		farmer.Put("/farmer", h.updateFarmerProfile)
		farmer.Post("/farmer/image:upload-url", h.createFarmImageUpload)
	})
}

func (h *ProfileHandlers) require(roles ...string) func(http.Handler) http.Handler {
	if h.authn == nil {
		return passthrough
	}
	return h.authn.RequireAuth(roles...)
}

type addressRequest struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

type locationRequest struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

type businessHoursRequest struct {
	Open  string   `json:"open"`
	Close string   `json:"close"`
	Days  []string `json:"days"`
}

type profileRequest struct {
	Name     *string          `json:"name"`
	FarmName *string          `json:"farmName"`
	Phone    *string          `json:"phone"`
	Address  *addressRequest  `json:"address"`
	Location *locationRequest `json:"location"`
}

type farmerProfileRequest struct {
	Name            *string               `json:"name"`
	FarmName        *string               `json:"farmName"`
	Phone           *string               `json:"phone"`
	FarmDescription *string               `json:"farmDescription"`
	FarmSince       *int                  `json:"farmSince"`
	Location        *locationRequest      `json:"location"`
	BusinessHours   *businessHoursRequest `json:"businessHours"`
	SocialMedia     map[string]string     `json:"socialMedia"`
	DeliveryAreas   *[]string             `json:"deliveryAreas"`
	Certifications  *[]string             `json:"certifications"`
	FarmImageObject *string               `json:"farmImageObject"`
}

func (h *ProfileHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}
	profile, err := h.profiles.GetProfile(ctx, caller)
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, profileResponse{Profile: buildProfilePayload(profile)})
}

func (h *ProfileHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeEditableFields(ctx, w, r, basicProfileFields, &req) {
		return
	}
	cmd := services.UpdateProfileCommand{
		Caller:   caller,
		Name:     req.Name,
		FarmName: req.FarmName,
		Phone:    req.Phone,
		Location: req.Location.toDomain(),
	}
	if req.Address != nil {
		cmd.Address = &domain.ProfileAddress{
			Street:  req.Address.Street,
			City:    req.Address.City,
			State:   req.Address.State,
			Pincode: req.Address.Pincode,
		}
	}
	profile, err := h.profiles.UpdateProfile(ctx, cmd)
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, profileResponse{Profile: buildProfilePayload(profile)})
}

func (h *ProfileHandlers) getFarmerProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}
	profile, err := h.profiles.GetFarmerProfile(ctx, caller)
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, profileResponse{Profile: buildProfilePayload(profile)})
}

func (h *ProfileHandlers) updateFarmerProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}
	var req farmerProfileRequest
	if !decodeEditableFields(ctx, w, r, farmerProfileFields, &req) {
		return
	}
	cmd := services.UpdateFarmerProfileCommand{
		Caller:          caller,
		Name:            req.Name,
		FarmName:        req.FarmName,
		Phone:           req.Phone,
		FarmDescription: req.FarmDescription,
		FarmSince:       req.FarmSince,
		Location:        req.Location.toDomain(),
		SocialMedia:     req.SocialMedia,
		SocialMediaSet:  req.SocialMedia != nil,
		DeliveryAreas:   req.DeliveryAreas,
		Certifications:  req.Certifications,
		FarmImageObject: req.FarmImageObject,
	}
	if req.BusinessHours != nil {
		cmd.BusinessHours = &domain.BusinessHours{
			Open:  req.BusinessHours.Open,
			Close: req.BusinessHours.Close,
			Days:  req.BusinessHours.Days,
		}
	}
	profile, err := h.profiles.UpdateFarmerProfile(ctx, cmd)
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, profileResponse{Profile: buildProfilePayload(profile)})
}

func (h *ProfileHandlers) createFarmImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}
	var req imageUploadRequest
	if !decodeJSONBody(ctx, w, r, maxProfileBodySize, &req) {
		return
	}
	upload, err := h.profiles.CreateFarmImageUpload(ctx, services.FarmImageUploadCommand{
		Caller:      caller,
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: strings.TrimSpace(req.ContentType),
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, imageUploadResponse{Upload: imageUploadPayload{
		ObjectPath: upload.ObjectPath,
		UploadURL:  upload.UploadURL,
		Method:     upload.Method,
		Headers:    upload.Headers,
		ExpiresAt:  formatTime(upload.ExpiresAt),
	}})
}

func (h *ProfileHandlers) getPublicFarmerProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	profile, err := h.profiles.PublicFarmerProfile(ctx, chi.URLParam(r, "farmerID"))
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, publicFarmerResponse{Farmer: buildPublicFarmerPayload(profile)})
}

func (h *ProfileHandlers) caller(ctx context.Context, w http.ResponseWriter) (services.ProfileIdentity, bool) {
	if !h.available(ctx, w) {
		return services.ProfileIdentity{}, false
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return services.ProfileIdentity{}, false
	}
	role := auth.RoleConsumer
	if identity.HasRole(auth.RoleFarmer) {
		role = auth.RoleFarmer
	}
	return services.ProfileIdentity{
		UserID: strings.TrimSpace(identity.UID),
		Email:  identity.Email,
		Name:   identity.Name,
		Role:   role,
	}, true
}

func (h *ProfileHandlers) available(ctx context.Context, w http.ResponseWriter) bool {
	if h.profiles == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

// decodeEditableFields rejects any top-level key outside allowed before decoding into dst.
func decodeEditableFields(ctx context.Context, w http.ResponseWriter, r *http.Request, allowed []string, dst any) bool {
	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	if len(raw) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errNoEditableFields.Error(), http.StatusBadRequest))
		return false
	}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !containsField(allowed, key) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("field %q is not editable", key), http.StatusBadRequest))
			return false
		}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func containsField(fields []string, key string) bool {
	for _, field := range fields {
		if field == key {
			return true
		}
	}
	return false
}

func (l *locationRequest) toDomain() *domain.FarmLocation {
	if l == nil {
		return nil
	}
	return &domain.FarmLocation{Address: l.Address, City: l.City, State: l.State, Pincode: l.Pincode}
}

func writeProfileError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrProfileInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", trimSentinel(err, services.ErrProfileInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrProfileNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("farmer_not_found", "farmer not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProfileForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", trimSentinel(err, services.ErrProfileForbidden), http.StatusForbidden))
	case errors.Is(err, services.ErrProfileConflict):
		httpx.WriteError(ctx, w, httpx.NewError("profile_conflict", "profile was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrProfileImagesDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("image_uploads_disabled", "image uploads are not configured", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrProfileUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile repository unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("profile_error", "failed to process profile request", http.StatusInternalServerError))
	}
}

type profileResponse struct {
	Profile profilePayload `json:"profile"`
}

type publicFarmerResponse struct {
	Farmer publicFarmerPayload `json:"farmer"`
}

type postalAddressPayload struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Pincode string `json:"pincode,omitempty"`
}

type locationPayload struct {
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Pincode string `json:"pincode,omitempty"`
}

type businessHoursPayload struct {
	Open  string   `json:"open,omitempty"`
	Close string   `json:"close,omitempty"`
	Days  []string `json:"days,omitempty"`
}

type farmFieldsPayload struct {
	FarmName        string               `json:"farmName,omitempty"`
	FarmDescription string               `json:"farmDescription,omitempty"`
	FarmImage       string               `json:"farmImage,omitempty"`
	FarmSince       int                  `json:"farmSince,omitempty"`
	Location        locationPayload      `json:"location"`
	BusinessHours   businessHoursPayload `json:"businessHours"`
	SocialMedia     map[string]string    `json:"socialMedia,omitempty"`
	DeliveryAreas   []string             `json:"deliveryAreas,omitempty"`
	Certifications  []string             `json:"certifications,omitempty"`
}

type profilePayload struct {
	ID      string               `json:"id"`
	Name    string               `json:"name"`
	Email   string               `json:"email,omitempty"`
	Phone   string               `json:"phone,omitempty"`
	Role    string               `json:"role"`
	Address postalAddressPayload `json:"address"`
	farmFieldsPayload
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// publicFarmerPayload omits contact and postal details.
type publicFarmerPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	farmFieldsPayload
}

func buildFarmFields(profile services.UserProfile) farmFieldsPayload {
	return farmFieldsPayload{
		FarmName:        profile.FarmName,
		FarmDescription: profile.FarmDescription,
		FarmImage:       profile.FarmImage.URL,
		FarmSince:       profile.FarmSince,
		Location: locationPayload{
			Address: profile.Location.Address,
			City:    profile.Location.City,
			State:   profile.Location.State,
			Pincode: profile.Location.Pincode,
		},
		BusinessHours: businessHoursPayload{
			Open:  profile.BusinessHours.Open,
			Close: profile.BusinessHours.Close,
			Days:  profile.BusinessHours.Days,
		},
		SocialMedia:    profile.SocialMedia,
		DeliveryAreas:  profile.DeliveryAreas,
		Certifications: profile.Certifications,
	}
}

func buildProfilePayload(profile services.UserProfile) profilePayload {
	return profilePayload{
		ID:    profile.ID,
		Name:  profile.Name,
		Email: profile.Email,
		Phone: profile.Phone,
		Role:  string(profile.Role),
		Address: postalAddressPayload{
			Street:  profile.Address.Street,
			City:    profile.Address.City,
			State:   profile.Address.State,
			Pincode: profile.Address.Pincode,
		},
		farmFieldsPayload: buildFarmFields(profile),
		CreatedAt:         formatTime(profile.CreatedAt),
		UpdatedAt:         formatTime(profile.UpdatedAt),
	}
}

func buildPublicFarmerPayload(profile services.UserProfile) publicFarmerPayload {
	return publicFarmerPayload{
		ID:                profile.ID,
		Name:              profile.Name,
		farmFieldsPayload: buildFarmFields(profile),
	}
}
