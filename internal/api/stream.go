package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	sseKeepAlive = 15 * time.Second
)

// events streams hub messages as server-sent events, one JSON event per
// message, with a comment line every sseKeepAlive so proxies keep the
// connection open.
func (s *Server) events(c echo.Context) error {
	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ch, cancel := s.hub.Subscribe()
	defer cancel()

	w := c.Response()
	fmt.Fprint(w, ": connected\n\n")
	w.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-keepAlive.C:
			fmt.Fprint(w, ": keepalive\n\n")
		case msg := <-ch:
			writeSSE(w, msg)
		}
		w.Flush()
	}
}

func writeSSE(w io.Writer, msg string) {
	fmt.Fprint(w, "event: message\n")
	for _, line := range strings.Split(msg, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

// ws mirrors the SSE feed over a websocket. Client messages are ignored;
// reading only detects disconnects.
func (s *Server) ws(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	defer conn.Close()

	ch, cancel := s.hub.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return nil
		case msg := <-ch:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return nil
			}
		}
	}
}
