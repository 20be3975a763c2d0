package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed between reads before the connection is considered dead.
	pongWait = 60 * time.Second

	// Ping period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from the peer. Clients only listen,
	// so anything beyond a close frame is suspect.
	maxMessageSize = 512
)

// client is one connected browser.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: false,
	})
	if err != nil {
		s.logger.Error("websocket upgrade", "err", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, 16),
		server: s,
	}

	go c.writePump()
	go c.readPump()

	s.register <- c
}

// checkOrigin only admits browsers served by this server. Connections
// without an Origin header are rejected.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	allowed := []string{
		fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		fmt.Sprintf("localhost:%d", s.cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", s.cfg.Server.Port),
	}
	for _, host := range allowed {
		if originURL.Host == host {
			return true
		}
	}
	return false
}

func (s *Server) runHub(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.closeAllClients()
			return

		case c := <-s.register:
			s.clientsMu.Lock()
			s.clients[c.conn] = c
			count := len(s.clients)
			s.clientsMu.Unlock()
			s.logger.Debug("client connected", "total", count)

		case conn := <-s.unregister:
			s.clientsMu.Lock()
			if c, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(c.send)
			}
			count := len(s.clients)
			s.clientsMu.Unlock()
			s.logger.Debug("client disconnected", "total", count)

		case message := <-s.broadcast:
			s.clientsMu.RLock()
			var stalled []*websocket.Conn
			for conn, c := range s.clients {
				select {
				case c.send <- message:
				default:
					stalled = append(stalled, conn)
				}
			}
			s.clientsMu.RUnlock()

			if len(stalled) > 0 {
				s.clientsMu.Lock()
				for _, conn := range stalled {
					if c, ok := s.clients[conn]; ok {
						delete(s.clients, conn)
						close(c.send)
						conn.Close(websocket.StatusNormalClosure, "")
					}
				}
				s.clientsMu.Unlock()
			}
		}
	}
}

func (s *Server) closeAllClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for conn, c := range s.clients {
		close(c.send)
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	s.clients = make(map[*websocket.Conn]*client)
}

// readPump drains the connection so close frames and timeouts are
// noticed, then unregisters the client.
func (c *client) readPump() {
	defer func() {
		c.server.unregister <- c.conn
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		readCtx, cancel := context.WithTimeout(context.Background(), pongWait)
		_, _, err := c.conn.Read(readCtx)
		cancel()
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				c.server.logger.Debug("websocket read", "err", err)
			}
			return
		}
	}
}

// writePump forwards broadcast messages and keeps the connection alive
// with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			writeCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				cancel()
				return
			}
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
