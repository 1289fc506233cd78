package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mlourenco/refbox/internal/fault"
	"go.uber.org/zap"
)

const crossrefBody = `{
	"message": {
		"title": ["Key challenges in genomics"],
		"container-title": ["Nature Reviews Genetics"],
		"DOI": "10.1038/NRG3626",
		"issued": {"date-parts": [[2013, 12]]}
	}
}`

func TestFetchDOI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/works/10.1038%2Fnrg3626" && r.URL.Path != "/works/10.1038/nrg3626" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, crossrefBody)
	}))
	t.Cleanup(srv.Close)
	c := NewCrossrefClient(srv.URL, time.Second, zap.NewNop())

	ref, err := c.FetchDOI(context.Background(), "10.1038/nrg3626")
	if err != nil {
		t.Fatal(err)
	}
	if ref == nil {
		t.Fatal("got nil reference")
	}
	if ref.Title != "Key challenges in genomics" {
		t.Errorf("title = %q", ref.Title)
	}
	if ref.Journal != "Nature Reviews Genetics" {
		t.Errorf("journal = %q", ref.Journal)
	}
	if ref.Year != 2013 {
		t.Errorf("year = %d, want 2013", ref.Year)
	}
	if ref.DOI != "10.1038/nrg3626" {
		t.Errorf("doi = %q, want lowercased", ref.DOI)
	}
}

func TestFetchDOINotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	c := NewCrossrefClient(srv.URL, time.Second, zap.NewNop())

	ref, err := c.FetchDOI(context.Background(), "10.9999/missing")
	if err != nil {
		t.Fatalf("404 should not be an error: %v", err)
	}
	if ref != nil {
		t.Errorf("ref = %+v, want nil for unknown doi", ref)
	}
}

func TestFetchDOIServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	c := NewCrossrefClient(srv.URL, time.Second, zap.NewNop())

	_, err := c.FetchDOI(context.Background(), "10.1038/nrg3626")
	if !fault.Is(err, fault.FetchFailure) {
		t.Errorf("error = %v, want fetch_failure", err)
	}
}

func TestFetchDOIUnreachable(t *testing.T) {
	c := NewCrossrefClient("http://127.0.0.1:1", 200*time.Millisecond, zap.NewNop())

	_, err := c.FetchDOI(context.Background(), "10.1038/nrg3626")
	if !fault.Is(err, fault.FetchFailure) {
		t.Errorf("error = %v, want fetch_failure", err)
	}
}
