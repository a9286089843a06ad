package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fakeRelay(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /claim", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = fmt.Fprint(w, `{"username":"alice","available":false,"reason":"AlreadyTaken"}`)
	})
	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("room") == "bob:alice" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprint(w, `{"error":"unknown room key"}`)
			return
		}
		_, _ = fmt.Fprintf(w, `[{"sender":"alice","target":"bob","body":"psst","isPrivate":true,"room":%q}]`, r.URL.Query().Get("user1")+":"+r.URL.Query().Get("user2"))
	})
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, ": keep-alive\n\n")
		_, _ = fmt.Fprint(w, `data: {"type":"presence","data":[{"identity":"alice"}]}`+"\n\n")
		_, _ = fmt.Fprint(w, `data: {"type":"message","data":{"sender":"bob","body":"hi","target":"public"}}`+"\n\n")
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_Claim_Taken_Is_Not_An_Error(t *testing.T) {
	req := require.New(t)
	client := newRelayClient(fakeRelay(t).URL, time.Second)

	available, err := client.Claim(context.Background(), "alice")

	req.NoError(err)
	req.False(available)
}

func TestClient_History(t *testing.T) {
	req := require.New(t)
	client := newRelayClient(fakeRelay(t).URL, time.Second)

	messages, err := client.History(context.Background(), "", "alice", "bob")
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("alice:bob", string(messages[0].Room))

	_, err = client.History(context.Background(), "bob:alice", "", "")
	var apiErr *apiError
	req.ErrorAs(err, &apiErr)
	req.Equal(http.StatusBadRequest, apiErr.Status)
	req.Equal("unknown room key", apiErr.Message)
}

func TestClient_Listen_Decodes_Stream(t *testing.T) {
	req := require.New(t)
	client := newRelayClient(fakeRelay(t).URL, time.Second)

	// Given a stream with a comment, a presence list and a message
	var types []string
	err := client.Listen(context.Background(), "alice", func(evt envelope) {
		types = append(types, evt.Type)
	})

	// Then comments are skipped and both events are decoded in order
	req.NoError(err)
	req.Equal([]string{"presence", "message"}, types)
}

func TestRun(t *testing.T) {
	ts := fakeRelay(t)
	t.Setenv("CHATCTL_SERVER_URL", ts.URL)
	t.Setenv("CHATCTL_COLOURS", "false")

	testCases := []struct {
		name     string
		args     []string
		code     int
		contains string
	}{
		{"no command", nil, exitConfig, ""},
		{"unknown command", []string{"dance"}, exitConfig, ""},
		{"claim taken", []string{"claim", "alice"}, exitRuntime, "alice is already taken"},
		{"pair history", []string{"history", "-user1", "alice", "-user2", "bob"}, exitOK, "psst"},
		{"listen", []string{"listen", "-user", "alice"}, exitOK, "online: alice"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			code, _ := run(tc.args, &out)
			require.Equal(t, tc.code, code)
			require.Contains(t, out.String(), tc.contains)
		})
	}
}

func TestOutgoing(t *testing.T) {
	req := require.New(t)

	req.Equal(map[string]any{"body": "hello all"}, outgoing("hello all"))
	req.Equal(map[string]any{"body": "psst", "target": "bob", "isPrivate": true}, outgoing("@bob psst"))
	req.Equal(map[string]any{"body": "@ alone"}, outgoing("@ alone"))
}
