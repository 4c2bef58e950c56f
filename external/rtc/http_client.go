package rtc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/foxseedlab/coachcall/internal/rtc"
	"github.com/gorilla/websocket"
)

const (
	controlRequestTimeout = 10 * time.Second
	dialTimeout           = 20 * time.Second
	eventBufferSize       = 256
)

type ClientConfig struct {
	BaseURL string
	APIKey  string
}

// HTTPClient drives the call provider's REST control surface and dials
// its realtime websocket to bridge an AI participant into a call.
type HTTPClient struct {
	config     ClientConfig
	httpClient *http.Client
	dialer     *websocket.Dialer
}

func NewHTTPClient(cfg ClientConfig) rtc.Client {
	return &HTTPClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: controlRequestTimeout},
		dialer:     &websocket.Dialer{HandshakeTimeout: dialTimeout},
	}
}

func (c *HTTPClient) ConnectAgent(ctx context.Context, callID, instructions string) (rtc.AgentConnection, error) {
	wsURL, err := c.realtimeURL(callID)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.config.APIKey)

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime dial failed: %w", err)
	}

	setup := map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"instructions": instructions,
		},
	}
	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send session setup: %w", err)
	}

	ac := &agentConnection{
		conn:   conn,
		events: make(chan rtc.RealtimeEvent, eventBufferSize),
		callID: callID,
	}
	go ac.readLoop()
	return ac, nil
}

func (c *HTTPClient) realtimeURL(callID string) (string, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid provider base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/calls/" + callID + "/realtime"
	return u.String(), nil
}

type agentConnection struct {
	conn   *websocket.Conn
	events chan rtc.RealtimeEvent
	callID string
}

func (a *agentConnection) readLoop() {
	defer close(a.events)
	for {
		var evt rtc.RealtimeEvent
		if err := a.conn.ReadJSON(&evt); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("realtime connection closed", "call_id", a.callID)
			} else {
				slog.Warn("realtime connection read failed", "call_id", a.callID, "error", err)
			}
			return
		}
		a.events <- evt
	}
}

func (a *agentConnection) Events() <-chan rtc.RealtimeEvent {
	return a.events
}

func (a *agentConnection) Close() error {
	return a.conn.Close()
}

func (c *HTTPClient) EndCall(ctx context.Context, callID string) error {
	return c.post(ctx, "/v1/calls/"+callID+"/end", nil)
}

func (c *HTTPClient) SendChannelMessage(ctx context.Context, channelID, fromUserID, text string) error {
	return c.post(ctx, "/v1/channels/"+channelID+"/messages", map[string]any{
		"user_id": fromUserID,
		"text":    text,
	})
}

func (c *HTTPClient) ListChannelMessages(ctx context.Context, channelID string, limit int) ([]rtc.ChatMessage, error) {
	reqURL := strings.TrimRight(c.config.BaseURL, "/") + "/v1/channels/" + channelID + "/messages?limit=" + strconv.Itoa(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var payload struct {
		Messages []struct {
			UserID string `json:"user_id"`
			Text   string `json:"text"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode channel messages: %w", err)
	}
	out := make([]rtc.ChatMessage, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		out = append(out, rtc.ChatMessage{UserID: m.UserID, Text: m.Text})
	}
	return out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body map[string]any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.config.BaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return nil
}
