package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := NewConfig()
	cfg.RoomGracePeriod = 50 * time.Millisecond
	srv := New(cfg)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://localhost"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var f struct {
		Type string         `json:"type"`
		Seq  uint64         `json:"seq"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &f))
	return frame{Type: f.Type, Seq: f.Seq, Data: f.Data}
}

func sendJoin(t *testing.T, conn *websocket.Conn, roomID, name string) string {
	t.Helper()
	msg := fmt.Sprintf(`{"type":"join_room","seq":1,"data":{"roomId":%q,"userName":%q}}`, roomID, name)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

	welcome := readFrame(t, conn)
	require.Equal(t, "welcome", welcome.Type)
	state := readFrame(t, conn)
	require.Equal(t, "room_state", state.Type)
	return welcome.Data["userId"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(body))
}

func TestUpgradeRejectsDisallowedOrigin(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowedOrigins = []string{"https://board.example"}
	srv := New(cfg)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	if conn != nil {
		_ = conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEndToEndJoinAndDraw(t *testing.T) {
	srv, ts := newTestServer(t)

	alice := dial(t, ts)
	aliceID := sendJoin(t, alice, "room-e2e", "Alice")

	bob := dial(t, ts)
	bobID := sendJoin(t, bob, "room-e2e", "Bob")
	assert.NotEqual(t, aliceID, bobID)

	joined := readFrame(t, alice)
	assert.Equal(t, "user_joined", joined.Type)
	assert.Equal(t, bobID, joined.Data["userId"])

	require.NoError(t, alice.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"stroke_start","seq":2,"data":{"strokeId":"s1","color":"#000000","width":2}}`)))
	require.NoError(t, alice.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"stroke_add","seq":3,"data":{"strokeId":"s1","points":[[10,10],[20,20]]}}`)))
	require.NoError(t, alice.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"stroke_end","seq":4,"data":{"strokeId":"s1"}}`)))

	var seqs []uint64
	for _, want := range []string{"stroke_start", "stroke_add", "stroke_end"} {
		f := readFrame(t, bob)
		assert.Equal(t, want, f.Type)
		assert.Equal(t, aliceID, f.Data["userId"])
		seqs = append(seqs, f.Seq)
	}
	assert.Less(t, seqs[0], seqs[1])
	assert.Less(t, seqs[1], seqs[2])

	room, ok := srv.Registry().Get("room-e2e")
	require.True(t, ok)
	s, ok := room.Stroke("s1")
	require.True(t, ok)
	assert.True(t, s.Complete)
	assert.Len(t, s.Points, 2)
}

func TestEndToEndPingPong(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","seq":41}`)))
	pong := readFrame(t, conn)
	assert.Equal(t, "pong", pong.Type)
	assert.Equal(t, uint64(41), pong.Seq)
}

func TestEndToEndDisconnectBroadcastsUserLeft(t *testing.T) {
	_, ts := newTestServer(t)

	alice := dial(t, ts)
	sendJoin(t, alice, "room-dc", "Alice")

	bob := dial(t, ts)
	bobID := sendJoin(t, bob, "room-dc", "Bob")
	require.Equal(t, "user_joined", readFrame(t, alice).Type)

	require.NoError(t, bob.Close())

	left := readFrame(t, alice)
	assert.Equal(t, "user_left", left.Type)
	assert.Equal(t, bobID, left.Data["userId"])
}

func TestEndToEndOversizedFrameDisconnects(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	sendJoin(t, conn, "room-big", "Alice")

	huge := `{"type":"cursor_move","data":{"x":1,"y":` + strings.Repeat("1", 70*1024) + `}}`
	_ = conn.WriteMessage(websocket.TextMessage, []byte(huge))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server drops connections that exceed the frame limit")
}

func TestShutdownClosesSessions(t *testing.T) {
	cfg := NewConfig()
	srv := New(cfg)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	conn := dial(t, ts)
	sendJoin(t, conn, "room-sd", "Alice")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 0, srv.SessionCount())
}
