package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestFetcherDownload(t *testing.T) {
	payload := "Product_Display_Name,String_Id,GUID,Service_Plan_Id,Service_Plan_Name,Service_Plans_Included_Friendly_Names\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "catalog.csv")
	fetcher := NewFetcher(server.Client(), server.URL, nil)

	if err := fetcher.Download(context.Background(), dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("unexpected file content %q", data)
	}
}

func TestFetcherDownloadStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "catalog.csv")
	fetcher := NewFetcher(server.Client(), server.URL, nil)

	if err := fetcher.Download(context.Background(), dest); err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("expected no file on failed download, got %v", err)
	}
}

func TestFetcherDoesNotClobberOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "catalog.csv")
	if err := os.WriteFile(dest, []byte("existing"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fetcher := NewFetcher(server.Client(), server.URL, nil)
	if err := fetcher.Download(context.Background(), dest); err == nil {
		t.Fatal("expected error")
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "existing" {
		t.Fatalf("expected existing catalog to be preserved, got %q", data)
	}
}
