package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kalambet/kian/internal/lmstudio"
)

type generateRequest struct {
	Messages         []lmstudio.Message `json:"messages"`
	Stream           bool               `json:"stream"`
	Temperature      *float64           `json:"temperature"`
	MaxTokens        *int               `json:"max_tokens"`
	TopP             *float64           `json:"top_p"`
	Stop             []string           `json:"stop"`
	PresencePenalty  *float64           `json:"presence_penalty"`
	FrequencyPenalty *float64           `json:"frequency_penalty"`
}

// handleGenerate forwards raw chat messages to the model server,
// bypassing templates and parsing. With "stream": true the answer goes
// out as SSE chunk events terminated by [DONE].
func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Messages) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "messages is required and must not be empty")
			return
		}

		opts := &lmstudio.Options{
			Temperature:      req.Temperature,
			MaxTokens:        req.MaxTokens,
			TopP:             req.TopP,
			Stop:             req.Stop,
			PresencePenalty:  req.PresencePenalty,
			FrequencyPenalty: req.FrequencyPenalty,
		}

		if req.Stream {
			streamGenerate(w, r, deps, req.Messages, opts)
			return
		}

		res, err := deps.Client.Generate(r.Context(), req.Messages, opts)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "upstream error: %v", err)
			return
		}
		writeJSON(w, map[string]any{
			"content": res.Content,
			"model":   res.Model,
			"usage":   res.Usage,
		})
	}
}

func streamGenerate(w http.ResponseWriter, r *http.Request, deps Deps, messages []lmstudio.Message, opts *lmstudio.Options) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var wrote bool
	_, err := deps.Client.GenerateStream(r.Context(), messages, opts, func(chunk string) error {
		payload, err := json.Marshal(map[string]string{"content": chunk})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		wrote = true
		return nil
	})
	if err != nil {
		// Before the first chunk the headers are still ours to change;
		// afterwards the failure has to travel in-stream.
		if !wrote {
			httpError(w, http.StatusBadGateway, "api_error", "upstream error: %v", err)
			return
		}
		payload, marshalErr := json.Marshal(map[string]any{
			"error": map[string]any{"message": err.Error(), "type": "api_error"},
		})
		if marshalErr == nil {
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
		return
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
