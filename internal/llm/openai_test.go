package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     url,
		ChatModel:   "chat-model",
		VisionModel: "vision-model",
		EmbedModel:  "embed-model",
	})
}

func TestComplete_Success(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"What drives the plan?"}}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.Complete(context.Background(), CompletionRequest{System: "sys", Prompt: "hi", JSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "What drives the plan?" {
		t.Errorf("out = %q", out)
	}
	if got.Model != "chat-model" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v", got.ResponseFormat)
	}
}

func TestComplete_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":"nope"}`)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Complete(context.Background(), CompletionRequest{Prompt: "hi"})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("IsTransient = %v, want %v (err=%v)", IsTransient(err), tt.transient, err)
			}
			if IsPermanent(err) == tt.transient {
				t.Errorf("IsPermanent = %v, want %v", IsPermanent(err), !tt.transient)
			}
		})
	}
}

func TestDescribeImage_SendsDataURL(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"elements\":[]}"}}]}`)
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).DescribeImage(context.Background(), Image{Data: []byte("png-bytes"), MIMEType: "image/png"}, "describe")
	if err != nil {
		t.Fatalf("DescribeImage: %v", err)
	}
	if out != `{"elements":[]}` {
		t.Errorf("out = %q", out)
	}
	if raw["model"] != "vision-model" {
		t.Errorf("model = %v", raw["model"])
	}
	b, _ := json.Marshal(raw["messages"])
	if !strings.Contains(string(b), "data:image/png;base64,") {
		t.Errorf("messages missing data URL: %s", b)
	}
}

func TestDescribeImage_EmptyIsPermanent(t *testing.T) {
	_, err := newTestClient("http://unused").DescribeImage(context.Background(), Image{}, "describe")
	if !IsPermanent(err) {
		t.Errorf("expected PermanentError, got %v", err)
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2,0.3]}]}`)
	}))
	defer srv.Close()

	vec, err := newTestClient(srv.URL).Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbed_EmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestComplete_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	if !IsTransient(err) {
		t.Errorf("expected TransientError, got %v", err)
	}
}

func TestRetrying_RecoversFromTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	r := NewRetrying(newTestClient(srv.URL), 3, time.Millisecond)
	out, err := r.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "ok" {
		t.Errorf("out = %q", out)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestRetrying_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r := NewRetrying(newTestClient(srv.URL), 3, time.Millisecond)
	_, err := r.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	if !IsTransient(err) {
		t.Fatalf("expected TransientError, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestRetrying_PermanentNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := NewRetrying(newTestClient(srv.URL), 3, time.Millisecond)
	_, err := r.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	if !IsPermanent(err) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

type completeOnly struct{}

func (completeOnly) Complete(context.Context, CompletionRequest) (string, error) { return "", nil }
func (completeOnly) DescribeImage(context.Context, Image, string) (string, error) {
	return "", nil
}

func TestRetrying_EmbedWithoutEmbedder(t *testing.T) {
	r := NewRetrying(completeOnly{}, 1, time.Millisecond)
	_, err := r.Embed(context.Background(), "x")
	if !errors.Is(err, errNoEmbedder) {
		t.Errorf("err = %v, want errNoEmbedder", err)
	}
}
