package rtc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/coachcall/internal/rtc"
	"github.com/gorilla/websocket"
)

func TestRealtimeURL_SchemeConversion(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://provider.example.com", "wss://provider.example.com/v1/calls/m1/realtime"},
		{"http://localhost:9000", "ws://localhost:9000/v1/calls/m1/realtime"},
		{"https://provider.example.com/api/", "wss://provider.example.com/api/v1/calls/m1/realtime"},
	}
	for _, c := range cases {
		client := NewHTTPClient(ClientConfig{BaseURL: c.base}).(*HTTPClient)
		got, err := client.realtimeURL("m1")
		if err != nil {
			t.Fatalf("realtimeURL(%q): %v", c.base, err)
		}
		if got != c.want {
			t.Fatalf("realtimeURL(%q) = %q, want %q", c.base, got, c.want)
		}
	}
}

func TestConnectAgent_SendsSetupAndDeliversEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/calls/m1/realtime" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() {
			_ = conn.Close()
		}()

		var setup struct {
			Type    string `json:"type"`
			Session struct {
				Instructions string `json:"instructions"`
			} `json:"session"`
		}
		if err := conn.ReadJSON(&setup); err != nil {
			t.Errorf("read setup frame: %v", err)
			return
		}
		if setup.Type != "session.update" || setup.Session.Instructions != "coach kindly" {
			t.Errorf("unexpected setup frame %+v", setup)
		}

		_ = conn.WriteJSON(rtc.RealtimeEvent{Type: rtc.EventUserTranscriptDone, Text: "Hello"})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer ts.Close()

	client := NewHTTPClient(ClientConfig{BaseURL: ts.URL, APIKey: "test-key"})
	conn, err := client.ConnectAgent(context.Background(), "m1", "coach kindly")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	select {
	case evt := <-conn.Events():
		if evt.Type != rtc.EventUserTranscriptDone || evt.Text != "Hello" {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for realtime event")
	}

	select {
	case _, ok := <-conn.Events():
		if ok {
			t.Fatal("expected channel closed after provider close frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestEndCall(t *testing.T) {
	var gotPath, gotMethod string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := NewHTTPClient(ClientConfig{BaseURL: ts.URL, APIKey: "k"})
	if err := client.EndCall(context.Background(), "m1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/calls/m1/end" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
}

func TestSendChannelMessage(t *testing.T) {
	var body map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/channels/m1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
	}))
	defer ts.Close()

	client := NewHTTPClient(ClientConfig{BaseURL: ts.URL, APIKey: "k"})
	if err := client.SendChannelMessage(context.Background(), "m1", "coach-bot", "well done"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if body["user_id"] != "coach-bot" || body["text"] != "well done" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestSendChannelMessage_ProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewHTTPClient(ClientConfig{BaseURL: ts.URL})
	if err := client.SendChannelMessage(context.Background(), "m1", "u", "x"); err == nil {
		t.Fatal("expected error for provider failure")
	}
}

func TestListChannelMessages(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("unexpected limit %q", got)
		}
		if !strings.HasPrefix(r.URL.Path, "/v1/channels/m1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"messages": [{"user_id": "u1", "text": "hi"}, {"user_id": "coach-bot", "text": "hello"}]}`))
	}))
	defer ts.Close()

	client := NewHTTPClient(ClientConfig{BaseURL: ts.URL, APIKey: "k"})
	msgs, err := client.ListChannelMessages(context.Background(), "m1", 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(msgs) != 2 || msgs[0].UserID != "u1" || msgs[1].Text != "hello" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}

func TestListChannelMessages_ProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewHTTPClient(ClientConfig{BaseURL: ts.URL})
	if _, err := client.ListChannelMessages(context.Background(), "m1", 5); err == nil {
		t.Fatal("expected error for provider failure")
	}
}
