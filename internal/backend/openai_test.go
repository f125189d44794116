package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sentinel-ops/sentinel-gateway/internal/config"
)

func newTestClient(baseURL string) *OpenAIClient {
	return NewOpenAIClient(config.BackendConfig{
		Type:    "openai",
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
		Headers: map[string]string{"X-Extra": "yes"},
	}, nil)
}

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		if got := r.Header.Get("X-Extra"); got != "yes" {
			t.Errorf("custom header dropped, got %q", got)
		}

		var body chatRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if len(body.Messages) != 1 || body.Messages[0].Content != "hello" {
			t.Errorf("unexpected messages %+v", body.Messages)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o-mini",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "hi there"}},
			},
		})
	}))
	defer srv.Close()

	gen, err := newTestClient(srv.URL).Generate(context.Background(), GenerateParams{
		Prompt: "hello",
		Model:  "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.Text != "hi there" {
		t.Errorf("expected text %q, got %q", "hi there", gen.Text)
	}
	if gen.ModelName != "gpt-4o-mini" {
		t.Errorf("expected model name from response, got %q", gen.ModelName)
	}
}

func TestGenerate_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), GenerateParams{Prompt: "x"})

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Status != http.StatusTooManyRequests || upstream.Subkind != "status" {
		t.Errorf("unexpected classification %+v", upstream)
	}
	if FailureKind(err) != "upstream_status" {
		t.Errorf("unexpected failure kind %q", FailureKind(err))
	}
}

func TestGenerate_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"model": "m", "choices": []any{}})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), GenerateParams{Prompt: "x"})

	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
	if FailureKind(err) != "empty_response" {
		t.Errorf("unexpected failure kind %q", FailureKind(err))
	}
}

func TestGenerate_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), GenerateParams{Prompt: "x"})

	if FailureKind(err) != "upstream_decode" {
		t.Errorf("expected decode failure, got %v", err)
	}
}

func TestGenerate_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client cancellation; otherwise Close waits on this handler forever.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).Generate(ctx, GenerateParams{Prompt: "x"})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if FailureKind(err) != "timeout" {
		t.Errorf("unexpected failure kind %q", FailureKind(err))
	}
}

func TestUninitialized(t *testing.T) {
	_, err := Uninitialized{}.Generate(context.Background(), GenerateParams{Prompt: "x"})
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if FailureKind(err) != "not_initialized" {
		t.Errorf("unexpected failure kind %q", FailureKind(err))
	}
}

func TestFailureKind_Nil(t *testing.T) {
	if got := FailureKind(nil); got != "" {
		t.Errorf("expected empty kind for nil error, got %q", got)
	}
}
