package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	DefaultExpoURL = "https://exp.host/--/api/v2/push/send"
	expoChunkSize  = 100
)

// ExpoSender posts notifications to the Expo push API in chunks of 100
// messages per request.
type ExpoSender struct {
	url         string
	accessToken string
	client      *http.Client
}

func NewExpoSender(url, accessToken string) *ExpoSender {
	if url == "" {
		url = DefaultExpoURL
	}
	return &ExpoSender{
		url:         url,
		accessToken: accessToken,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

type expoMessage struct {
	To       string            `json:"to"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound"`
	ThreadID string            `json:"threadId,omitempty"`
}

type expoResponse struct {
	Data []struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"data"`
}

func (s *ExpoSender) Send(ctx context.Context, n Notification) error {
	tokens := dedupe(n.Tokens)
	failed := 0
	for start := 0; start < len(tokens); start += expoChunkSize {
		end := min(start+expoChunkSize, len(tokens))
		batch := make([]expoMessage, 0, end-start)
		for _, tok := range tokens[start:end] {
			batch = append(batch, expoMessage{
				To:       tok,
				Title:    n.Title,
				Body:     n.Body,
				Data:     n.Data,
				Sound:    "default",
				ThreadID: n.GroupKey,
			})
		}
		bad, err := s.post(ctx, batch)
		if err != nil {
			return err
		}
		failed += bad
	}
	if failed > 0 {
		return fmt.Errorf("expo rejected %d of %d messages", failed, len(tokens))
	}
	return nil
}

func (s *ExpoSender) post(ctx context.Context, batch []expoMessage) (int, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.accessToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("expo push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("expo push: status %d", resp.StatusCode)
	}

	var result expoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("expo push: decode: %w", err)
	}
	failed := 0
	for _, ticket := range result.Data {
		if ticket.Status != "ok" {
			failed++
		}
	}
	return failed, nil
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok || t == "" {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
