package bus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_PublishSubscribe(t *testing.T) {
	b := NewLocal(nil)
	ctx := context.Background()

	var got []string
	b.Subscribe(ActionSendMessage, func(_ context.Context, msg Message) {
		var data TextData
		require.NoError(t, msg.Decode(&data))
		got = append(got, "first:"+data.Text)
	})
	unsubscribe := b.Subscribe(ActionSendMessage, func(_ context.Context, msg Message) {
		got = append(got, "second")
	})

	msg, err := NewMessage(ActionSendMessage, TextData{Text: "hi"})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, msg))
	assert.Equal(t, []string{"first:hi", "second"}, got)

	unsubscribe()
	require.NoError(t, b.Publish(ctx, msg))
	assert.Equal(t, []string{"first:hi", "second", "first:hi"}, got)
}

func TestLocal_UnknownActionIgnored(t *testing.T) {
	b := NewLocal(nil)
	assert.NoError(t, b.Publish(context.Background(), Message{Action: "nobody"}))
}

func TestLocal_Closed(t *testing.T) {
	b := NewLocal(nil)
	called := false
	b.Subscribe(ActionClearChat, func(context.Context, Message) { called = true })

	require.NoError(t, b.Close())
	err := b.Publish(context.Background(), Message{Action: ActionClearChat})
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, called)
}

func TestMessage_Decode(t *testing.T) {
	msg, err := NewMessage(ActionSelectModule, ModuleData{ModuleCode: "CST3350"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"module_code":"CST3350"}`, string(msg.Data))

	var data ModuleData
	require.NoError(t, msg.Decode(&data))
	assert.Equal(t, "CST3350", data.ModuleCode)

	empty, err := NewMessage(ActionCheckPanel, nil)
	require.NoError(t, err)
	assert.Error(t, empty.Decode(&data))
}

func TestWebSocket_RoundTrip(t *testing.T) {
	peers := make(chan *WebSocket, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		peer, err := Accept(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		peer.Subscribe(ActionSendMessage, func(ctx context.Context, msg Message) {
			var data TextData
			if assert.NoError(t, msg.Decode(&data)) {
				reply, _ := NewMessage(ActionBotMessage, TextData{Text: "echo: " + data.Text})
				assert.NoError(t, peer.Publish(ctx, reply))
			}
		})
		peers <- peer
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), slogDiscard())
	require.NoError(t, err)

	replies := make(chan string, 1)
	client.Subscribe(ActionBotMessage, func(_ context.Context, msg Message) {
		var data TextData
		if assert.NoError(t, msg.Decode(&data)) {
			replies <- data.Text
		}
	})

	peer := <-peers
	msg, err := NewMessage(ActionSendMessage, TextData{Text: "ping"})
	require.NoError(t, err)
	require.NoError(t, client.Publish(ctx, msg))

	select {
	case reply := <-replies:
		assert.Equal(t, "echo: ping", reply)
	case <-ctx.Done():
		t.Fatal("no reply from peer")
	}

	require.NoError(t, client.Close())
	select {
	case <-peer.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("peer did not observe close")
	}
	require.NoError(t, peer.Close())

	assert.ErrorIs(t, client.Publish(ctx, msg), ErrClosed)
}

func TestDial_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := Dial(context.Background(), url, slogDiscard())
	assert.Error(t, err)
}
