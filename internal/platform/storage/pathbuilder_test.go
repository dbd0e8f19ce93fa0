package storage

import "testing"

func TestBuildProductImagePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductID: "prod123",
		ImageID:   "01HZXK3J8Q",
		FileName:  "Tomatoes.JPG",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "products/prod123/images/01hzxk3j8q.jpg"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildProductImagePathFallsBackToContentType(t *testing.T) {
	path, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductID:   "prod123",
		ImageID:     "img1",
		ContentType: "image/png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "products/prod123/images/img1.png"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildFarmImagePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeFarmImage, PathParams{
		FarmerID: "farmer-7",
		ImageID:  "01J0ABC",
		FileName: "barn.webp",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "farmers/farmer-7/images/01j0abc.webp"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
	if _, err := BuildObjectPath(PurposeFarmImage, PathParams{ImageID: "x", FileName: "a.png"}); err == nil {
		t.Fatalf("expected error without farmer id")
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductID: "../bad",
		ImageID:   "img",
		FileName:  "file.png",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}

func TestBuildObjectPathUnknownPurpose(t *testing.T) {
	if _, err := BuildObjectPath(AssetPurpose("receipt"), PathParams{}); err == nil {
		t.Fatalf("expected error for unknown purpose")
	}
}

func TestPublicURLEscapesSegments(t *testing.T) {
	got := PublicURL("krishisetu-products", "products/p 1/images/a.png")
	expected := "https://storage.googleapis.com/krishisetu-products/products/p%201/images/a.png"
	if got != expected {
		t.Fatalf("expected %s, got %s", expected, got)
	}
}
