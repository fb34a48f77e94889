package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hazyhaar/savoir/fault"
)

func allowAll(string) error { return nil }

func TestFetch_RecordsValidatorsAndHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>hello</html>"))
	}))
	defer srv.Close()

	f := New(Config{URLValidator: allowAll})
	res, err := f.Fetch(context.Background(), srv.URL, "", "", "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.ETag != `"abc"` || res.LastMod != "Mon, 02 Jan 2006 15:04:05 GMT" {
		t.Errorf("validators not recorded verbatim: %+v", res)
	}
	if res.Hash == "" || !res.Changed {
		t.Errorf("hash/changed wrong: %+v", res)
	}
}

func TestFetch_ConditionalGet304(t *testing.T) {
	// WHAT: Matching If-None-Match yields a 304 with Changed=false.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		w.Write([]byte("body"))
	}))
	defer srv.Close()

	f := New(Config{URLValidator: allowAll})
	res, err := f.Fetch(context.Background(), srv.URL, `"abc"`, "", "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Changed || res.StatusCode != http.StatusNotModified {
		t.Errorf("304 handling: %+v", res)
	}
}

func TestFetch_UnchangedHash(t *testing.T) {
	// WHAT: A body identical to prevHash reports Changed=false even when
	// the server ignores conditional headers.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("stable content"))
	}))
	defer srv.Close()

	f := New(Config{URLValidator: allowAll})
	first, err := f.Fetch(context.Background(), srv.URL, "", "", "")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.Fetch(context.Background(), srv.URL, "", "", first.Hash)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Changed {
		t.Error("identical body must report unchanged")
	}
}

func TestFetch_StatusClassification(t *testing.T) {
	cases := []struct {
		code      int
		transient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
		}))
		f := New(Config{URLValidator: allowAll})
		_, err := f.Fetch(context.Background(), srv.URL, "", "", "")
		srv.Close()
		if err == nil {
			t.Errorf("status %d: expected error", tc.code)
			continue
		}
		if got := fault.IsTransient(err); got != tc.transient {
			t.Errorf("status %d: transient=%v, want %v (%v)", tc.code, got, tc.transient, err)
		}
	}
}

func TestFetch_ValidatorBlocks(t *testing.T) {
	f := New(Config{})
	_, err := f.Fetch(context.Background(), "ftp://example.org/x", "", "", "")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, fault.ErrPermanent) {
		t.Errorf("blocked URL must be permanent: %v", err)
	}
}

func TestFetch_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	f := New(Config{MaxBytes: 100, URLValidator: allowAll})
	res, err := f.Fetch(context.Background(), srv.URL, "", "", "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Body) != 100 {
		t.Errorf("body not capped: %d bytes", len(res.Body))
	}
}

func TestHead_FollowsRedirects(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"final"`)
	}))
	defer target.Close()
	hop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusMovedPermanently)
	}))
	defer hop.Close()

	f := New(Config{URLValidator: allowAll})
	v, err := f.Head(context.Background(), hop.URL)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if v.ETag != `"final"` {
		t.Errorf("redirect not followed: %+v", v)
	}
}
