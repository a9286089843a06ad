package main

import (
	"bufio"
	"bytes"
	"chat-relay/domain"
	"chat-relay/search"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// envelope is the JSON shape of every event pushed by the relay.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("relay answered %d: %s", e.Status, e.Message)
}

type relayClient struct {
	baseURL string
	http    *http.Client
}

func newRelayClient(baseURL string, timeout time.Duration) *relayClient {
	return &relayClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *relayClient) Send(ctx context.Context, sender, target, body string) (domain.Message, error) {
	payload := map[string]any{"sender": sender, "body": body, "target": target, "isPrivate": target != ""}
	var response struct {
		Success bool           `json:"success"`
		Message domain.Message `json:"message"`
	}
	err := c.do(ctx, http.MethodPost, "/send-message", nil, payload, &response)
	return response.Message, err
}

func (c *relayClient) History(ctx context.Context, room, user1, user2 string) ([]domain.Message, error) {
	query := url.Values{}
	if room != "" {
		query.Set("room", room)
	} else {
		query.Set("user1", user1)
		query.Set("user2", user2)
	}
	var messages []domain.Message
	err := c.do(ctx, http.MethodGet, "/history", query, nil, &messages)
	return messages, err
}

func (c *relayClient) Search(ctx context.Context, room, input string) ([]search.Hit, error) {
	var hits []search.Hit
	err := c.do(ctx, http.MethodGet, "/search", url.Values{"room": {room}, "q": {input}}, nil, &hits)
	return hits, err
}

func (c *relayClient) Presence(ctx context.Context) ([]domain.Presence, error) {
	var presence []domain.Presence
	err := c.do(ctx, http.MethodGet, "/presence", nil, nil, &presence)
	return presence, err
}

// Claim returns false when the name is taken, an error when it is invalid.
func (c *relayClient) Claim(ctx context.Context, username string) (bool, error) {
	err := c.do(ctx, http.MethodPost, "/claim", nil, map[string]string{"username": username}, nil)
	if apiErr, ok := err.(*apiError); ok && apiErr.Status == http.StatusConflict {
		return false, nil
	}
	return err == nil, err
}

// Listen follows the event stream of a new session until ctx is cancelled.
// The stream has no deadline, only the context ends it.
func (c *relayClient) Listen(ctx context.Context, username string, onEvent func(envelope)) error {
	endpoint := c.baseURL + "/events?" + url.Values{"username": {username}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var evt envelope
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			return fmt.Errorf("invalid event %q: %w", data, err)
		}
		onEvent(evt)
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

// Dial opens a WebSocket session, used by the interactive chat command.
func (c *relayClient) Dial(ctx context.Context, username string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws?" + url.Values{"username": {username}}.Encode()
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil && resp != nil {
		return nil, readAPIError(resp)
	}
	return conn, err
}

func (c *relayClient) do(ctx context.Context, method, path string, query url.Values, payload, target any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return readAPIError(resp)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func readAPIError(resp *http.Response) error {
	var body struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			message = body.Error
		} else if body.Reason != "" {
			message = body.Reason
		}
	}
	return &apiError{Status: resp.StatusCode, Message: message}
}
