package generator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/webbuilder/internal/plan"
)

func TestHTTPGeneratorPostsPlan(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"html":"<!DOCTYPE html><html></html>","model":"x"}`))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, time.Second)
	html, err := g.Generate(context.Background(), plan.Classify("tienda", []string{"a.png"}, nil))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(html, "<!DOCTYPE html>") {
		t.Fatalf("unexpected html %q", html)
	}
	if got["type"] != "ecommerce" || got["style"] != "modern ecommerce" {
		t.Fatalf("unexpected payload %v", got)
	}
	if secs, ok := got["sections"].([]any); !ok || len(secs) != 4 {
		t.Fatalf("expected 4 sections, got %v", got["sections"])
	}
	if imgs, ok := got["images"].([]any); !ok || len(imgs) != 1 {
		t.Fatalf("expected images in payload, got %v", got["images"])
	}
	if _, ok := got["docs"]; ok {
		t.Fatalf("docs should be omitted when empty: %v", got)
	}
}

func TestHTTPGeneratorNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPGenerator(srv.URL, time.Second).Generate(context.Background(), plan.Classify("", nil, nil))
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", ue.StatusCode)
	}
	if !strings.Contains(ue.Error(), "model overloaded") {
		t.Fatalf("expected body in error, got %q", ue.Error())
	}
	if !IsUpstream(err) {
		t.Fatalf("IsUpstream should be true")
	}
}

func TestHTTPGeneratorMalformedResponse(t *testing.T) {
	cases := map[string]string{
		"missing html": `{"markup":"<html></html>"}`,
		"not json":     `<html></html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewHTTPGenerator(srv.URL, time.Second).Generate(context.Background(), plan.Classify("", nil, nil))
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestHTTPGeneratorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPGenerator(url, time.Second).Generate(context.Background(), plan.Classify("", nil, nil))
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != 0 || ue.Err == nil {
		t.Fatalf("expected transport UpstreamError, got %#v", err)
	}
}

func TestHTTPGeneratorTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPGenerator(srv.URL, 50*time.Millisecond).Generate(context.Background(), plan.Classify("", nil, nil))
	if !IsUpstream(err) {
		t.Fatalf("expected upstream timeout error, got %v", err)
	}
}
