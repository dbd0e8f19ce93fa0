package storage

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"sync"
)

// AssetPurpose captures high-level intent for storage layout decisions.
type AssetPurpose string

const (
	PurposeProductImage AssetPurpose = "product-image"
	PurposeFarmImage    AssetPurpose = "farm-image"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	ProductID   string
	FarmerID    string
	ImageID     string
	FileName    string
	ContentType string
}

// PathBuilder composes the object path for a given asset purpose.
type PathBuilder func(PathParams) (string, error)

var (
	pathBuilders = map[AssetPurpose]PathBuilder{
		PurposeProductImage: buildProductImagePath,
		PurposeFarmImage:    buildFarmImagePath,
	}
	pathBuildersMu sync.RWMutex
)

// RegisterPathBuilder overrides or registers a builder for a specific purpose.
func RegisterPathBuilder(purpose AssetPurpose, builder PathBuilder) {
	pathBuildersMu.Lock()
	defer pathBuildersMu.Unlock()
	if builder == nil {
		delete(pathBuilders, purpose)
		return
	}
	pathBuilders[purpose] = builder
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose AssetPurpose, params PathParams) (string, error) {
	pathBuildersMu.RLock()
	builder, ok := pathBuilders[purpose]
	pathBuildersMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: unsupported asset purpose %q", purpose)
	}
	return builder(params)
}

// ProductImagePrefix returns the object prefix under which every image of productID lives.
func ProductImagePrefix(productID string) string {
	return fmt.Sprintf("products/%s/images/", strings.TrimSpace(productID))
}

func buildProductImagePath(params PathParams) (string, error) {
	productID, err := validateSegment("productID", params.ProductID)
	if err != nil {
		return "", err
	}
	imageID, err := validateSegment("imageID", params.ImageID)
	if err != nil {
		return "", err
	}
	ext, err := imageExtension(params.FileName, params.ContentType)
	if err != nil {
		return "", err
	}
	return ProductImagePrefix(productID) + strings.ToLower(imageID) + ext, nil
}

// FarmImagePrefix returns the object prefix under which the farm photos of farmerID live.
func FarmImagePrefix(farmerID string) string {
	return fmt.Sprintf("farmers/%s/images/", strings.TrimSpace(farmerID))
}

func buildFarmImagePath(params PathParams) (string, error) {
	farmerID, err := validateSegment("farmerID", params.FarmerID)
	if err != nil {
		return "", err
	}
	imageID, err := validateSegment("imageID", params.ImageID)
	if err != nil {
		return "", err
	}
	ext, err := imageExtension(params.FileName, params.ContentType)
	if err != nil {
		return "", err
	}
	return FarmImagePrefix(farmerID) + strings.ToLower(imageID) + ext, nil
}

// imageExtension prefers the file name extension and falls back to the content type.
func imageExtension(fileName, contentType string) (string, error) {
	if name := strings.TrimSpace(fileName); name != "" {
		if _, err := validateFileName(name); err != nil {
			return "", err
		}
		if ext := strings.ToLower(path.Ext(name)); len(ext) > 1 {
			return ext, nil
		}
	}
	if ct := strings.TrimSpace(contentType); ct != "" {
		if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
			return exts[0], nil
		}
		if _, sub, ok := strings.Cut(ct, "/"); ok && sub != "" && !strings.ContainsAny(sub, "/\\;. ") {
			return "." + strings.ToLower(sub), nil
		}
	}
	return "", fmt.Errorf("storage: file extension could not be determined")
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
