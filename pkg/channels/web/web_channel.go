package web

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"toolbridge/pkg/action"
	"toolbridge/pkg/api"
	"toolbridge/pkg/metrics"
	"toolbridge/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local automation clients connect from anywhere
	},
}

// WebConfig is the "web" entry of system.json channels.
type WebConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// MaxUploadMB bounds multipart uploads.
	MaxUploadMB int `json:"max_upload_mb"`
}

// DefaultWebConfig listens on 127.0.0.1:8000.
func DefaultWebConfig() WebConfig {
	return WebConfig{Host: "127.0.0.1", Port: 8000, MaxUploadMB: 32}
}

// IncomingMessage is one websocket request.
type IncomingMessage struct {
	Context string `json:"context"`
	Image   string `json:"image"` // base64
	APIKey  string `json:"api_key"`
}

// SafeConn serializes writes to a websocket connection.
type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(messageType, data)
}

// WebChannel serves decision requests over HTTP and websocket.
type WebChannel struct {
	config   WebConfig
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

// NewWebChannel creates an unstarted channel.
func NewWebChannel(cfg WebConfig) *WebChannel {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = DefaultWebConfig().MaxUploadMB
	}
	return &WebChannel{config: cfg}
}

func (c *WebChannel) ID() string {
	return "web"
}

// Router builds the HTTP routes bound to ctx.
func (c *WebChannel) Router(ctx api.ChannelContext) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", c.handleHealth)
	r.Post("/ask", func(w http.ResponseWriter, req *http.Request) {
		c.handleAsk(w, req, ctx)
	})
	r.Post("/reset", func(w http.ResponseWriter, req *http.Request) {
		ctx.Reset(req.Context(), c.ID())
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	})
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		c.handleWebSocket(w, req, ctx)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	addr := net.JoinHostPort(c.config.Host, fmt.Sprintf("%d", c.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	c.mu.Lock()
	c.listener = ln
	c.server = &http.Server{
		Handler:           c.Router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := c.server
	c.mu.Unlock()

	slog.Info("Web API listening", "addr", ln.Addr().String())

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (c *WebChannel) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

func (c *WebChannel) Stop() error {
	c.mu.Lock()
	server := c.server
	c.mu.Unlock()
	if server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (c *WebChannel) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAsk reads multipart fields screenshot, context and api_key.
func (c *WebChannel) handleAsk(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(c.config.MaxUploadMB)<<20)
	if err := r.ParseMultipartForm(int64(c.config.MaxUploadMB) << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form: " + err.Error()})
		return
	}

	req := &api.AskRequest{
		Session: api.SessionContext{ChannelID: c.ID(), ClientID: r.RemoteAddr},
		Context: r.FormValue("context"),
		APIKey:  r.FormValue("api_key"),
	}

	file, header, err := r.FormFile("screenshot")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read screenshot"})
			return
		}
		if len(data) > 0 {
			mimeType, _, err := utils.SniffImage(data)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid screenshot: " + err.Error()})
				return
			}
			req.Image = &api.FileAttachment{
				Filename: header.Filename,
				MimeType: mimeType,
				Data:     data,
			}
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid screenshot: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ctx.Ask(r.Context(), req))
}

// handleWebSocket answers one ActionResponse per incoming message, in order.
func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS Upgrade failed", "error", err)
		return
	}
	conn := &SafeConn{Conn: rawConn}
	defer conn.Close()

	session := api.SessionContext{ChannelID: c.ID(), ClientID: r.RemoteAddr}
	slog.Info("WS client connected", "client", session.ClientID)

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			slog.Debug("WS client gone", "client", session.ClientID, "error", err)
			return
		}

		var resp action.Response
		var incoming IncomingMessage
		if err := json.Unmarshal(msgBytes, &incoming); err != nil {
			resp = action.ErrorResponse("invalid message: " + action.Truncate(err.Error(), action.MaxDiagnosticLen))
		} else {
			req := &api.AskRequest{Session: session, Context: incoming.Context, APIKey: incoming.APIKey}
			if incoming.Image != "" {
				data, err := base64.StdEncoding.DecodeString(incoming.Image)
				mimeType, _, sniffErr := utils.SniffImage(data)
				switch {
				case err != nil:
					slog.Warn("Failed to decode base64 image", "client", session.ClientID, "error", err)
				case sniffErr != nil:
					slog.Warn("Ignoring non-image frame", "client", session.ClientID, "error", sniffErr)
				default:
					req.Image = &api.FileAttachment{Filename: "ws_frame", MimeType: mimeType, Data: data}
				}
			}
			resp = ctx.Ask(r.Context(), req)
		}

		data, err := json.Marshal(resp)
		if err != nil {
			slog.Error("Failed to marshal response", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
