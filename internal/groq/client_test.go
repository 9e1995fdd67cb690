package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testModels() Models {
	return Models{
		Chat:    "test-chat",
		Whisper: "test-whisper",
		TTS:     "test-tts",
		Voice:   "test-voice",
	}
}

func TestChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-chat" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.MaxTokens != 100 {
			t.Errorf("max_tokens = %d", req.MaxTokens)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hello back"}},
			},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", testModels())
	c.SetBaseURL(server.URL)

	got, err := c.ChatCompletion(context.Background(), "you are a test", []Message{{Role: "user", Content: "hello"}}, 100)
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if got != "hello back" {
		t.Errorf("content = %q", got)
	}
}

func TestChatCompletionAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "rate_limit", "message": "slow down"},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", testModels())
	c.SetBaseURL(server.URL)

	_, err := c.ChatCompletion(context.Background(), "", []Message{{Role: "user", Content: "hi"}}, 100)
	if err == nil {
		t.Fatal("expected error for API error response")
	}
}

func TestChatCompletionEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	c := NewClient("test-key", testModels())
	c.SetBaseURL(server.URL)

	_, err := c.ChatCompletion(context.Background(), "", []Message{{Role: "user", Content: "hi"}}, 100)
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "test-whisper" {
			t.Errorf("model field = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "turn.wav" {
			t.Errorf("filename = %q", header.Filename)
		}

		json.NewEncoder(w).Encode(map[string]any{"text": "we are a saas company"})
	}))
	defer server.Close()

	c := NewClient("test-key", testModels())
	c.SetBaseURL(server.URL)

	got, err := c.Transcribe(context.Background(), []byte("RIFF...."), "turn.wav")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "we are a saas company" {
		t.Errorf("text = %q", got)
	}
}

func TestSynthesize(t *testing.T) {
	wav := []byte{'R', 'I', 'F', 'F', 0, 0, 0, 0}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req speechRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-tts" || req.Voice != "test-voice" {
			t.Errorf("model/voice = %q/%q", req.Model, req.Voice)
		}
		if req.ResponseFormat != "wav" {
			t.Errorf("response_format = %q", req.ResponseFormat)
		}
		w.Write(wav)
	}))
	defer server.Close()

	c := NewClient("test-key", testModels())
	c.SetBaseURL(server.URL)

	got, err := c.Synthesize(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(got, wav) {
		t.Errorf("audio bytes = %v", got)
	}
}
