package content_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/content"
)

func TestFetchTriesPeersInOrder(t *testing.T) {
	payload := []byte("hello creator node")
	multihash := content.Multihash(payload)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	}))
	defer good.Close()

	fetcher := content.NewFetcher(0)
	data, err := fetcher.Fetch([]string{bad.URL, good.URL}, multihash)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("unexpected payload: %s", data)
	}
}

func TestFetchRejectsHashMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("tampered bytes"))
	}))
	defer server.Close()

	fetcher := content.NewFetcher(0)
	_, err := fetcher.Fetch([]string{server.URL}, content.Multihash([]byte("original bytes")))
	if err == nil {
		t.Fatalf("expected hash mismatch error")
	}
}

func TestWriteAndPathFor(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("content bytes")
	multihash := content.Multihash(payload)

	path, err := content.Write(dir, multihash, payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if path != content.PathFor(dir, multihash) {
		t.Fatalf("unexpected path: %s", path)
	}
	if !content.Exists(dir, multihash) {
		t.Fatalf("expected content to exist after write")
	}
}
