package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"toolbridge/pkg/action"
	"toolbridge/pkg/api"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContext struct {
	mu     sync.Mutex
	reqs   []*api.AskRequest
	resets int
}

func (f *fakeContext) Ask(ctx context.Context, req *api.AskRequest) action.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	r := action.Default()
	r.Thought = "seen " + req.Context
	r.ActionType = action.TypeClick
	r.ScreenPosition = action.Vector2{X: 0.5, Y: 0.5}
	return r
}

func (f *fakeContext) Reset(ctx context.Context, channelID string) {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func newServer(t *testing.T) (*httptest.Server, *fakeContext) {
	t.Helper()
	fc := &fakeContext{}
	srv := httptest.NewServer(NewWebChannel(DefaultWebConfig()).Router(fc))
	t.Cleanup(srv.Close)
	return srv, fc
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAsk_Multipart(t *testing.T) {
	srv, fc := newServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("context", "main menu"))
	require.NoError(t, mw.WriteField("api_key", "secret"))
	fw, err := mw.CreateFormFile("screenshot", "frame.png")
	require.NoError(t, err)
	fw.Write([]byte("\x89PNG\r\n\x1a\n0000"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/ask", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out action.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "seen main menu", out.Thought)
	assert.Equal(t, action.TypeClick, out.ActionType)

	require.Len(t, fc.reqs, 1)
	assert.Equal(t, "secret", fc.reqs[0].APIKey)
	assert.Equal(t, "web", fc.reqs[0].Session.ChannelID)
	require.NotNil(t, fc.reqs[0].Image)
	assert.Equal(t, "frame.png", fc.reqs[0].Image.Filename)
}

func TestAsk_WithoutScreenshot(t *testing.T) {
	srv, fc := newServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("context", "text only"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/ask", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, fc.reqs, 1)
	assert.Nil(t, fc.reqs[0].Image)
}

func TestAsk_RejectsNonImageScreenshot(t *testing.T) {
	srv, fc := newServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("context", "menu"))
	fw, err := mw.CreateFormFile("screenshot", "frame.png")
	require.NoError(t, err)
	fw.Write([]byte("this is not a picture"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/ask", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, fc.reqs)
}

func TestAsk_RejectsNonMultipart(t *testing.T) {
	srv, fc := newServer(t)
	resp, err := http.Post(srv.URL+"/ask", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, fc.reqs)
}

func TestReset(t *testing.T) {
	srv, fc := newServer(t)
	resp, err := http.Post(srv.URL+"/reset", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, fc.resets)
}

func TestMetrics(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocket(t *testing.T) {
	srv, fc := newServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	msg, _ := json.Marshal(IncomingMessage{
		Context: "in game",
		Image:   base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n0000")),
	})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out action.Response
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "seen in game", out.Thought)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.IsError())

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Len(t, fc.reqs, 1)
	require.NotNil(t, fc.reqs[0].Image)
}

func TestFactory(t *testing.T) {
	ch, err := (&WebFactory{}).Create([]byte(`{"host":"0.0.0.0","port":9000}`), nil)
	require.NoError(t, err)
	wc := ch.(*WebChannel)
	assert.Equal(t, 9000, wc.config.Port)
	assert.Equal(t, 32, wc.config.MaxUploadMB)

	_, err = (&WebFactory{}).Create([]byte(`{`), nil)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	wc := NewWebChannel(WebConfig{Host: "127.0.0.1", Port: 0})
	require.NoError(t, wc.Start(&fakeContext{}))
	addr := wc.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NoError(t, wc.Stop())
}
