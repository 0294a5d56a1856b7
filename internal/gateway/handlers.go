package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"tradepulse/internal/markethours"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers the gateway's HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, rdb *goredis.Client, keys []string, tfs []int, processStart time.Time) {
	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWS(conn, r.URL.Query().Get("last_ts"))
	})

	// REST: latest analysis result for one instrument
	mux.HandleFunc("/api/analysis", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		key := r.URL.Query().Get("key")
		if key == "" {
			// All instruments: everything cached on analysis channels
			out := make(map[string]json.RawMessage)
			for ch, data := range hub.LatestAll() {
				if strings.HasPrefix(ch, "pub:analysis:") {
					out[strings.TrimPrefix(ch, "pub:analysis:")] = data
				}
			}
			json.NewEncoder(w).Encode(out)
			return
		}

		if data := hub.Latest("pub:analysis:" + key); data != nil {
			w.Write(data)
			return
		}
		// Cold cache (gateway restarted): fall back to the Redis latest key
		data, err := rdb.Get(r.Context(), "analysis:latest:"+key).Bytes()
		if err == goredis.Nil {
			http.Error(w, `{"error":"no analysis for instrument"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"redis unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.Write(data)
	})

	// REST: last primary signal per instrument
	mux.HandleFunc("/api/signals", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		vals, err := rdb.HGetAll(r.Context(), "signal:last").Result()
		if err != nil {
			json.NewEncoder(w).Encode(map[string]string{})
			return
		}
		json.NewEncoder(w).Encode(vals)
	})

	// REST: recent candles from the Redis stream
	mux.HandleFunc("/api/candles", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		key := r.URL.Query().Get("key")
		if key == "" && len(keys) > 0 {
			key = keys[0]
		}
		tf, _ := strconv.Atoi(r.URL.Query().Get("tf"))
		if tf <= 0 {
			tf = 60
		}
		limit := 200
		if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 1000 {
			limit = l
		}

		streamKey := fmt.Sprintf("candle:%ds:%s", tf, key)
		msgs, err := rdb.XRevRangeN(r.Context(), streamKey, "+", "-", int64(limit)).Result()
		if err != nil {
			json.NewEncoder(w).Encode([]any{})
			return
		}
		// Reverse to chronological order
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}

		candles := make([]json.RawMessage, 0, len(msgs))
		for _, msg := range msgs {
			if dataStr, ok := msg.Values["data"].(string); ok {
				candles = append(candles, json.RawMessage(dataStr))
			}
		}
		json.NewEncoder(w).Encode(candles)
	})

	// REST: replay missed envelopes after a WS gap
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		channel := r.URL.Query().Get("channel")
		from, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		to, _ := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
		if channel == "" || from <= 0 {
			http.Error(w, `{"error":"channel and from are required"}`, http.StatusBadRequest)
			return
		}
		if to <= 0 {
			to = hub.ChannelSeq(channel)
		}

		envelopes := hub.ReplayRange(channel, from, to)
		out := make([]json.RawMessage, len(envelopes))
		for i, e := range envelopes {
			out[i] = e
		}
		json.NewEncoder(w).Encode(map[string]any{
			"channel":   channel,
			"seq":       hub.ChannelSeq(channel),
			"envelopes": out,
		})
	})

	// REST: serving config
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": keys,
			"tfs":  tfs,
		})
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		redisOK := rdb.Ping(r.Context()).Err() == nil
		now := time.Now()
		json.NewEncoder(w).Encode(map[string]any{
			"status":        "ok",
			"redis":         redisOK,
			"ws_clients":    hub.ClientCount(),
			"market_open":   markethours.IsMarketOpen(now),
			"market_status": markethours.StatusString(now),
			"uptime_sec":    int64(time.Since(processStart).Seconds()),
			"ts":            now.UTC().Format(time.RFC3339Nano),
		})
	})
}
