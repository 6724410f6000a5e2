// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	return NewClientWithConfig(&ClientConfig{
		BaseURL: url,
		Model:   "test-model",
		Timeout: 2 * time.Second,
	})
}

func TestSendMessage_Success(t *testing.T) {
	var gotReq MessageRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(MessageResponse{
			Text:           "analysis text",
			ConversationID: "conv-1",
			MessageID:      "msg-1",
		})
	}))
	defer ts.Close()

	client := testClient(ts.URL)

	resp, err := client.SendMessage(context.Background(), "hello")
	require.NoError(t, err)

	require.Equal(t, "hello", gotReq.Text)
	require.Equal(t, "test-model", gotReq.Model)
	require.Empty(t, gotReq.ConversationID, "first send carries no conversation context")

	require.Equal(t, "analysis text", resp.Content())
}

func TestSendMessage_ConversationContinuity(t *testing.T) {
	var requests []MessageRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req MessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		json.NewEncoder(w).Encode(MessageResponse{
			Text:           "reply",
			ConversationID: "conv-9",
			MessageID:      "msg-9",
		})
	}))
	defer ts.Close()

	client := testClient(ts.URL)

	_, err := client.SendMessage(context.Background(), "first")
	require.NoError(t, err)
	_, err = client.SendMessage(context.Background(), "second")
	require.NoError(t, err)

	require.Len(t, requests, 2)
	require.Equal(t, "conv-9", requests[1].ConversationID)
	require.Equal(t, "msg-9", requests[1].ParentMessageID)

	// Resetting drops the stored context.
	client.ResetConversation()
	_, err = client.SendMessage(context.Background(), "third")
	require.NoError(t, err)
	require.Empty(t, requests[2].ConversationID)
}

func TestSendMessageAs_ExplicitContext(t *testing.T) {
	var gotReq MessageRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(MessageResponse{Response: "proxied"})
	}))
	defer ts.Close()

	client := testClient(ts.URL)

	resp, err := client.SendMessageAs(context.Background(), MessageRequest{
		Text:            "proxy me",
		ConversationID:  "caller-conv",
		ParentMessageID: "caller-msg",
	})
	require.NoError(t, err)

	require.Equal(t, "caller-conv", gotReq.ConversationID)
	require.Equal(t, "caller-msg", gotReq.ParentMessageID)
	require.Equal(t, "test-model", gotReq.Model, "empty model falls back to configured default")
	require.Equal(t, "proxied", resp.Content())
}

func TestMessageResponse_Content(t *testing.T) {
	tests := []struct {
		name string
		resp MessageResponse
		want string
	}{
		{"text field", MessageResponse{Text: "a"}, "a"},
		{"response field", MessageResponse{Response: "b"}, "b"},
		{"text wins", MessageResponse{Text: "a", Response: "b"}, "a"},
		{"both empty", MessageResponse{}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.resp.Content(); got != tc.want {
				t.Errorf("Content() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSendMessage_BadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer ts.Close()

	client := testClient(ts.URL)

	_, err := client.SendMessage(context.Background(), "hello")
	require.Error(t, err)

	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	require.Equal(t, ErrTypeBadStatus, clientErr.Type)
}

func TestSendMessage_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	client := testClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.SendMessage(ctx, "hello")
	require.True(t, IsTimeout(err), "expected timeout, got: %v", err)
}

func TestCheckHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/config", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := testClient(ts.URL)
	require.NoError(t, client.CheckHealth(context.Background()))
}

func TestCheckHealth_Down(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	client := testClient(url)
	require.Error(t, client.CheckHealth(context.Background()))
}
