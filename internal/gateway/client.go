package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	filterMu sync.RWMutex
	filters  ClientFilters
}

// ClientFilters restricts which channels a client receives. Empty slices
// mean "everything".
type ClientFilters struct {
	Keys []string `json:"keys"` // instrument keys, e.g. "NSE:26000"
	TFs  []int    `json:"tfs"`  // candle timeframes in seconds
}

// subscribeMsg is the client → server control message.
type subscribeMsg struct {
	Type string `json:"type"`
	Ping int64  `json:"ping"`
	ClientFilters
}

func (c *Client) sendInitialState(lastTS string) {
	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		if !c.matchesChannel(channel) {
			continue
		}
		envelope, _ := json.Marshal(map[string]any{
			"channel": channel,
			"data":    json.RawMessage(entry.Data),
			"ts":      entry.TS.Format(time.RFC3339Nano),
			"seq":     entry.Seq,
			"initial": true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Coalesce queued messages into one frame, newline separated
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var m subscribeMsg
		if json.Unmarshal(msg, &m) != nil {
			continue
		}

		switch m.Type {
		case "SUBSCRIBE":
			c.filterMu.Lock()
			c.filters = m.ClientFilters
			c.filterMu.Unlock()
			log.Printf("[gateway] client filters updated: keys=%v tfs=%v", m.Keys, m.TFs)
		default:
			if m.Ping > 0 {
				pong, _ := json.Marshal(map[string]any{
					"type":      "pong",
					"ping":      m.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}

// matchesChannel reports whether this client's filters admit the channel.
func (c *Client) matchesChannel(channel string) bool {
	c.filterMu.RLock()
	f := c.filters
	c.filterMu.RUnlock()

	parsed := parseChannel(channel)
	if parsed == nil {
		return true // non-data channel, always deliver
	}
	if len(f.Keys) > 0 && !containsStr(f.Keys, parsed.key) {
		return false
	}
	if parsed.kind == "candle" && len(f.TFs) > 0 && !containsInt(f.TFs, parsed.tf) {
		return false
	}
	return true
}

// parsedChannel holds the components of a PubSub channel name.
type parsedChannel struct {
	kind string // "analysis", "signal", "candle"
	tf   int    // candle channels only
	key  string // instrument key, e.g. "NSE:26000"
}

// parseChannel parses "pub:analysis:NSE:26000", "pub:signal:NSE:26000" or
// "pub:candle:60s:NSE:26000".
func parseChannel(channel string) *parsedChannel {
	parts := strings.Split(channel, ":")
	if len(parts) < 4 || parts[0] != "pub" {
		return nil
	}
	switch parts[1] {
	case "analysis", "signal":
		return &parsedChannel{kind: parts[1], key: strings.Join(parts[2:], ":")}
	case "candle":
		if len(parts) < 5 {
			return nil
		}
		return &parsedChannel{
			kind: "candle",
			tf:   parseTFStr(parts[2]),
			key:  strings.Join(parts[3:], ":"),
		}
	}
	return nil
}

// parseTFStr parses "60s" → 60.
func parseTFStr(s string) int {
	s = strings.TrimSuffix(s, "s")
	n := 0
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			n = n*10 + int(ch-'0')
		}
	}
	return n
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, n := range list {
		if n == v {
			return true
		}
	}
	return false
}
