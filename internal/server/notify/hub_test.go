package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeWS(w, r); err != nil {
			t.Errorf("ServeWS: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForListeners(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ListenerCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("listener count = %d, want %d", hub.ListenerCount(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_Publish(t *testing.T) {
	t.Run("fans out to every connected listener", func(t *testing.T) {
		hub, server := newTestHub(t)
		first := dial(t, server)
		second := dial(t, server)
		waitForListeners(t, hub, 2)

		hub.Publish(EventMusicAdded, map[string][]int64{"new_ids": {42}})

		for _, conn := range []*websocket.Conn{first, second} {
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, data, err := conn.ReadMessage()
			if err != nil {
				t.Fatalf("read: %v", err)
			}

			var got struct {
				Event string `json:"event"`
				Data  struct {
					NewIDs []int64 `json:"new_ids"`
				} `json:"data"`
			}
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Event != EventMusicAdded {
				t.Errorf("event = %q, want %q", got.Event, EventMusicAdded)
			}
			if len(got.Data.NewIDs) != 1 || got.Data.NewIDs[0] != 42 {
				t.Errorf("new_ids = %v, want [42]", got.Data.NewIDs)
			}
		}
	})

	t.Run("disconnected listeners just miss events", func(t *testing.T) {
		hub, server := newTestHub(t)
		stayer := dial(t, server)
		leaver := dial(t, server)
		waitForListeners(t, hub, 2)

		leaver.Close()
		waitForListeners(t, hub, 1)

		hub.Publish(EventUploadStatus, map[string]string{
			"message":  "uploaded",
			"category": CategorySuccess,
		})

		stayer.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := stayer.ReadMessage(); err != nil {
			t.Fatalf("remaining listener should still receive: %v", err)
		}
	})

	t.Run("publish with no listeners is a no-op", func(t *testing.T) {
		hub := NewHub()
		hub.Publish(EventUploadStatus, map[string]string{"message": "nobody home"})
		if hub.ListenerCount() != 0 {
			t.Errorf("listener count = %d, want 0", hub.ListenerCount())
		}
	})
}
