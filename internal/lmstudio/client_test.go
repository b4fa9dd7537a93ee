package lmstudio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// completionJSON builds a /v1/chat/completions response with the given content.
func completionJSON(model, content string) []byte {
	resp := chatResponse{
		Model: model,
		Choices: []chatChoice{
			{Message: Message{Role: "assistant", Content: content}, FinishReason: "stop"},
		},
		Usage: Usage{PromptTokens: 12, CompletionTokens: 34, TotalTokens: 46},
	}
	b, _ := json.Marshal(resp)
	return b
}

// modelsJSON builds a /v1/models response with the given model ids.
func modelsJSON(ids ...string) []byte {
	list := modelList{}
	for _, id := range ids {
		list.Data = append(list.Data, ModelInfo{ID: id, Object: "model"})
	}
	b, _ := json.Marshal(list)
	return b
}

func testClient(srvURL string) *Client {
	c := New(Config{BaseURL: srvURL})
	c.backoff = time.Millisecond
	return c
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{})
	if c.baseURL != "http://localhost:1234" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if c.model != "qwen2.5-7b-instruct" {
		t.Errorf("model = %q", c.model)
	}
	if c.maxRetries != 3 || c.temperature != 0.7 || c.maxTokens != 2000 || c.topP != 0.9 {
		t.Errorf("sampling defaults = %d/%v/%d/%v", c.maxRetries, c.temperature, c.maxTokens, c.topP)
	}
	if c.httpClient.Timeout != 120*time.Second {
		t.Errorf("timeout = %v", c.httpClient.Timeout)
	}
}

func TestGenerate_Success(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write(completionJSON("qwen2.5-7b-instruct", "  Die Antwort.\n"))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	res, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "Frage"}}, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if res.Content != "Die Antwort." {
		t.Errorf("content = %q, want trimmed answer", res.Content)
	}
	if res.Model != "qwen2.5-7b-instruct" {
		t.Errorf("model = %q", res.Model)
	}
	if res.Usage.TotalTokens != 46 {
		t.Errorf("usage = %+v", res.Usage)
	}

	if gotReq.Model != "qwen2.5-7b-instruct" || gotReq.Temperature != 0.7 || gotReq.MaxTokens != 2000 {
		t.Errorf("request carried %q/%v/%d, want client defaults", gotReq.Model, gotReq.Temperature, gotReq.MaxTokens)
	}
	if gotReq.Stream {
		t.Error("non-streaming request had stream=true")
	}
}

func TestGenerate_OptionsOverride(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write(completionJSON("m", "ok"))
	}))
	defer srv.Close()

	temp := 0.3
	maxTok := 500
	presence := 0.5
	c := testClient(srv.URL)
	_, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "x"}}, &Options{
		Temperature:     &temp,
		MaxTokens:       &maxTok,
		PresencePenalty: &presence,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if gotReq.Temperature != 0.3 || gotReq.MaxTokens != 500 {
		t.Errorf("request carried %v/%d, want overrides 0.3/500", gotReq.Temperature, gotReq.MaxTokens)
	}
	if gotReq.TopP != 0.9 {
		t.Errorf("top_p = %v, want client default kept", gotReq.TopP)
	}
	if gotReq.PresencePenalty == nil || *gotReq.PresencePenalty != 0.5 {
		t.Errorf("presence_penalty = %v, want 0.5", gotReq.PresencePenalty)
	}
	if gotReq.FrequencyPenalty != nil {
		t.Errorf("frequency_penalty = %v, want omitted", gotReq.FrequencyPenalty)
	}
}

func TestGenerate_RetriesOnServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "model loading", http.StatusInternalServerError)
			return
		}
		w.Write(completionJSON("m", "nach dem Retry"))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	res, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if calls != 2 {
		t.Errorf("got %d calls, want 2", calls)
	}
	if res.Content != "nach dem Retry" {
		t.Errorf("content = %q", res.Content)
	}
}

func TestGenerate_ValidationErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error": "context length exceeded"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	if err == nil {
		t.Fatal("expected error on 422")
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1 (validation errors must not retry)", calls)
	}
	if !strings.Contains(err.Error(), "context length exceeded") {
		t.Errorf("error %q lacks server detail", err)
	}
}

func TestGenerate_RetriesExhausted(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "kaputt", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error = %q", err)
	}
}

func TestGenerate_EmptyContent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(completionJSON("m", "   \n"))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "empty content") {
		t.Fatalf("err = %v, want empty-content error", err)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1 (empty content is not transient)", calls)
	}
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model": "m", "choices": []}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Fatalf("err = %v, want no-choices error", err)
	}
}

func TestGenerate_NoMessages(t *testing.T) {
	c := New(Config{})
	if _, err := c.Generate(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for empty message list")
	}
}

func streamBody(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestGenerateStream(t *testing.T) {
	body := streamBody(
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		`data: {"choices":[{"delta":{"content":"Hallo"}}]}`,
		`kein sse prefix`,
		`data: kaputtes json`,
		`data: {"choices":[{"delta":{"content":" Welt"}}]}`,
		`data: [DONE]`,
		`data: {"choices":[{"delta":{"content":"zu spät"}}]}`,
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("streaming request had stream=false")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	var chunks []string
	c := testClient(srv.URL)
	res, err := c.GenerateStream(context.Background(), []Message{{Role: "user", Content: "x"}}, nil, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	if got := strings.Join(chunks, ""); got != "Hallo Welt" {
		t.Errorf("streamed content = %q, want %q", got, "Hallo Welt")
	}
	if len(chunks) != 2 {
		t.Errorf("got %d chunks, want 2", len(chunks))
	}
	if res.Content != "Hallo Welt" {
		t.Errorf("accumulated content = %q, want %q", res.Content, "Hallo Welt")
	}
}

func TestGenerateStream_CallbackAborts(t *testing.T) {
	body := streamBody(
		`data: {"choices":[{"delta":{"content":"eins"}}]}`,
		`data: {"choices":[{"delta":{"content":"zwei"}}]}`,
		`data: [DONE]`,
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	abort := errors.New("abbruch")
	c := testClient(srv.URL)
	_, err := c.GenerateStream(context.Background(), []Message{{Role: "user", Content: "x"}}, nil, func(chunk string) error {
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("err = %v, want callback error", err)
	}
}

func TestGenerateStream_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "kein modell geladen", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.GenerateStream(context.Background(), []Message{{Role: "user", Content: "x"}}, nil, func(string) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err = %v, want status error", err)
	}
}

func TestCheckConnection_ResolvesModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write(modelsJSON("mistral-7b", "Qwen2.5-7B-Instruct-Q4_K_M"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "qwen2.5-7b-instruct"})
	check, err := c.CheckConnection(context.Background())
	if err != nil {
		t.Fatalf("CheckConnection: %v", err)
	}

	if !check.OK {
		t.Error("check.OK = false")
	}
	if check.ResolvedModel != "Qwen2.5-7B-Instruct-Q4_K_M" {
		t.Errorf("resolved = %q, want case-insensitive match", check.ResolvedModel)
	}
	if len(check.Models) != 2 {
		t.Errorf("got %d models, want 2", len(check.Models))
	}
	if c.Model() != "qwen2.5-7b-instruct" {
		t.Errorf("client model changed to %q; check must not mutate", c.Model())
	}
}

func TestCheckConnection_FallsBackToFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(modelsJSON("llama-3.2-3b", "phi-4"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "qwen2.5-7b-instruct"})
	check, err := c.CheckConnection(context.Background())
	if err != nil {
		t.Fatalf("CheckConnection: %v", err)
	}
	if check.ResolvedModel != "llama-3.2-3b" {
		t.Errorf("resolved = %q, want first listed model", check.ResolvedModel)
	}
}

func TestCheckConnection_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(Config{BaseURL: srv.URL})
	check, err := c.CheckConnection(context.Background())
	if err == nil {
		t.Fatal("expected error for unreachable server")
	}
	if check.OK {
		t.Error("check.OK = true for unreachable server")
	}
}

func TestLookupModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(modelsJSON("llama-3.2-3b", "Qwen2.5-7B-Instruct"))
	}))
	defer srv.Close()

	c := testClient(srv.URL)

	info, err := c.LookupModel(context.Background(), "qwen2.5-7b-instruct")
	if err != nil {
		t.Fatalf("LookupModel: %v", err)
	}
	if info.ID != "Qwen2.5-7B-Instruct" {
		t.Errorf("ID = %q, want case-insensitive match", info.ID)
	}

	info, err = c.LookupModel(context.Background(), "mistral-7b")
	if err != nil {
		t.Fatalf("LookupModel fallback: %v", err)
	}
	if info.ID != "llama-3.2-3b" {
		t.Errorf("ID = %q, want first listed model", info.ID)
	}
}

func TestLookupModel_NoneLoaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(modelsJSON())
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if _, err := c.LookupModel(context.Background(), "qwen2.5-7b-instruct"); err == nil {
		t.Fatal("expected error when no models are loaded")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("abcdefgh"); got != 2 {
		t.Errorf("EstimateTokens = %d, want 2", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
}

func TestValidateRequestSize(t *testing.T) {
	small := []Message{{Role: "user", Content: strings.Repeat("a", 400)}}
	if err := ValidateRequestSize(small, 1000); err != nil {
		t.Errorf("small prompt rejected: %v", err)
	}

	big := []Message{{Role: "user", Content: strings.Repeat("a", 4000)}}
	if err := ValidateRequestSize(big, 1000); err == nil {
		t.Error("oversized prompt accepted")
	}
}
