package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/docfiscal/nfscan/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are filtered by the reverse proxy in deployment.
		return true
	},
}

// WSMessage is the envelope for all WebSocket traffic on /ws/pdf.
type WSMessage struct {
	Type     string           `json:"type"` // "progress", "completed", "error"
	Page     int              `json:"page,omitempty"`
	Total    int              `json:"total,omitempty"`
	Result   *pipeline.Result `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
	Filename string           `json:"filename,omitempty"`
}

// wsRequest is the single message a client sends to start a scan. The PDF
// bytes travel base64-encoded inside the JSON frame.
type wsRequest struct {
	Filename string `json:"filename,omitempty"`
	PDF      []byte `json:"pdf"`
}

// pdfWebSocketHandler scans an uploaded PDF and streams per-page progress
// back to the client before delivering the final result.
func (s *Server) pdfWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("websocket connection established", "remote_addr", r.RemoteAddr)

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("websocket read failed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleWSScan(r, conn, data)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}
}

func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleWSScan(r *http.Request, conn *websocket.Conn, data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		writeWS(conn, WSMessage{Type: "error", Error: "invalid request: " + err.Error()})
		return
	}
	if len(req.PDF) == 0 {
		writeWS(conn, WSMessage{Type: "error", Error: "empty pdf payload"})
		return
	}
	if int64(len(req.PDF)) > s.maxUploadBytes {
		writeWS(conn, WSMessage{Type: "error", Error: "pdf exceeds upload limit"})
		return
	}

	tmp, err := os.CreateTemp("", "nfscan-ws-*.pdf")
	if err != nil {
		writeWS(conn, WSMessage{Type: "error", Error: "failed to store upload"})
		return
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(req.PDF); err != nil {
		_ = tmp.Close()
		writeWS(conn, WSMessage{Type: "error", Error: "failed to store upload"})
		return
	}
	_ = tmp.Close()

	progress := func(page, total int) {
		writeWS(conn, WSMessage{Type: "progress", Page: page, Total: total, Filename: req.Filename})
	}

	start := time.Now()
	result, err := s.pipeline.ProcessPDF(r.Context(), tmp.Name(), pipeline.Options{}, progress)
	if err != nil {
		scanRequestsTotal.WithLabelValues("pdf", "error").Inc()
		writeWS(conn, WSMessage{Type: "error", Error: err.Error(), Filename: req.Filename})
		return
	}
	s.observeResult("pdf", result, time.Since(start))
	writeWS(conn, WSMessage{Type: "completed", Result: result, Filename: req.Filename})
}

func writeWS(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal websocket message", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("write websocket message", "error", err)
	}
}
