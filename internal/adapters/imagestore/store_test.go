package imagestore_test

import (
	"context"
	"testing"

	"github.com/spf13/afero"

	"github.com/vegwatch/vegwatch/internal/adapters/imagestore"
)

func TestStore_SaveComposite(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := imagestore.New(fs, "static/images")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, err := store.SaveComposite(context.Background(), 2024, []byte("png-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "static/images/satellite_2024.png" {
		t.Errorf("unexpected path %q", path)
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestStore_OverwritesSameYear(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, _ := imagestore.New(fs, "static/images")

	ctx := context.Background()
	if _, err := store.SaveComposite(ctx, 2023, []byte("first")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path, err := store.SaveComposite(ctx, 2023, []byte("second"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, _ := afero.ReadFile(fs, path)
	if string(data) != "second" {
		t.Errorf("re-run must overwrite; got %q", data)
	}
}

func TestStore_ReadOnlyFs(t *testing.T) {
	ro := afero.NewReadOnlyFs(afero.NewMemMapFs())
	if _, err := imagestore.New(ro, "static/images"); err == nil {
		t.Error("expected error creating store on read-only filesystem")
	}
}
