package feed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tradepulse/internal/model"
)

const (
	defaultStreamURL  = "wss://smartapisocket.angelone.in/smart-stream"
	heartbeatInterval = 10 * time.Second
	heartbeatMessage  = "ping"

	subscribeAction = 1
	modeSnapQuote   = 3 // LTP + quote + OI, the fields the analysis needs
)

// Exchange segment ids on the wire.
const (
	ExchangeNSE = 1
	ExchangeNFO = 2
	ExchangeBSE = 3
	ExchangeBFO = 4
	ExchangeMCX = 5
)

var exchangeTypeToName = map[int]string{
	ExchangeNSE: "NSE",
	ExchangeNFO: "NFO",
	ExchangeBSE: "BSE",
	ExchangeBFO: "BFO",
	ExchangeMCX: "MCX",
}

var exchangeNameToType = map[string]int{
	"NSE": ExchangeNSE,
	"NFO": ExchangeNFO,
	"BSE": ExchangeBSE,
	"BFO": ExchangeBFO,
	"MCX": ExchangeMCX,
}

// TokenGroup is a set of instrument tokens on one exchange segment,
// the unit of a subscribe request.
type TokenGroup struct {
	ExchangeType int      `json:"exchangeType"`
	Tokens       []string `json:"tokens"`
}

// TokenGroups converts "EXCHANGE:token" instrument keys into subscribe
// groups, one per exchange segment.
func TokenGroups(keys []string) ([]TokenGroup, error) {
	byType := make(map[int][]string)
	for _, key := range keys {
		exchange, token, err := SplitKey(key)
		if err != nil {
			return nil, err
		}
		et, ok := exchangeNameToType[exchange]
		if !ok {
			return nil, fmt.Errorf("feed: unknown exchange %q in key %q", exchange, key)
		}
		byType[et] = append(byType[et], token)
	}
	groups := make([]TokenGroup, 0, len(byType))
	for et, tokens := range byType {
		groups = append(groups, TokenGroup{ExchangeType: et, Tokens: tokens})
	}
	return groups, nil
}

// StreamConfig holds the session tokens and subscription list for one
// websocket session.
type StreamConfig struct {
	URL string // defaults to the broker's stream endpoint

	AuthToken  string
	APIKey     string
	ClientCode string
	FeedToken  string

	Tokens []TokenGroup

	RetryDelay    time.Duration // initial reconnect backoff, default 2s
	MaxRetryDelay time.Duration // backoff cap, default 30s
}

// Stream consumes the broker's binary tick feed and emits normalized ticks.
// It reconnects with exponential backoff and resubscribes until its context
// is cancelled.
type Stream struct {
	cfg StreamConfig

	// OnReconnect fires after a dropped connection is re-established.
	OnReconnect func()
}

// NewStream validates the config and returns a Stream ready to Run.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.AuthToken == "" || cfg.APIKey == "" || cfg.ClientCode == "" || cfg.FeedToken == "" {
		return nil, errors.New("feed: stream requires auth, api key, client code and feed token")
	}
	if len(cfg.Tokens) == 0 {
		return nil, errors.New("feed: no tokens to subscribe")
	}
	if cfg.URL == "" {
		cfg.URL = defaultStreamURL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 30 * time.Second
	}
	return &Stream{cfg: cfg}, nil
}

// Run connects and pushes ticks into tickCh until ctx is cancelled. A full
// channel drops the tick rather than stalling the read loop. Returns nil on
// context cancellation.
func (s *Stream) Run(ctx context.Context, tickCh chan<- model.Tick) error {
	backoff := s.cfg.RetryDelay
	first := true

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := s.dial(ctx)
		if err != nil {
			log.Printf("[feed] ws dial failed: %v, retrying in %v", err, backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > s.cfg.MaxRetryDelay {
				backoff = s.cfg.MaxRetryDelay
			}
			continue
		}
		backoff = s.cfg.RetryDelay

		if err := s.subscribe(conn); err != nil {
			log.Printf("[feed] subscribe failed: %v", err)
			conn.Close()
			continue
		}
		if first {
			first = false
			log.Printf("[feed] ws connected, %d token groups subscribed", len(s.cfg.Tokens))
		} else {
			log.Println("[feed] ws reconnected")
			if s.OnReconnect != nil {
				s.OnReconnect()
			}
		}

		err = s.readLoop(ctx, conn, tickCh)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("[feed] ws session ended: %v", err)
	}
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", s.cfg.AuthToken)
	header.Set("x-api-key", s.cfg.APIKey)
	header.Set("x-client-code", s.cfg.ClientCode)
	header.Set("x-feed-token", s.cfg.FeedToken)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return nil, err
	}
	return conn, nil
}

func (s *Stream) subscribe(conn *websocket.Conn) error {
	req := map[string]any{
		"correlationID": "tradepulse",
		"action":        subscribeAction,
		"params": map[string]any{
			"mode":      modeSnapQuote,
			"tokenList": s.cfg.Tokens,
		},
	}
	return conn.WriteJSON(req)
}

// readLoop reads frames until the connection breaks or ctx is cancelled.
// A heartbeat goroutine keeps the session alive; the broker answers with a
// "pong" text frame.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn, tickCh chan<- model.Tick) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(heartbeatMessage)); err != nil {
					return
				}
			}
		}
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.BinaryMessage {
			continue // "pong" and other text frames
		}
		tick, err := parseQuote(msg)
		if err != nil {
			log.Printf("[feed] quote parse error: %v", err)
			continue
		}
		select {
		case tickCh <- tick:
		default:
			log.Println("[feed] tick channel full, dropping tick")
		}
	}
}

// parseQuote decodes one snap-quote binary frame. All prices on the wire are
// already in paise; timestamps are epoch milliseconds.
//
// Layout (little-endian):
//
//	[0]      subscription mode
//	[1]      exchange type
//	[2:27]   token, NUL-padded ASCII
//	[27:35]  sequence number
//	[35:43]  exchange timestamp (ms)
//	[43:51]  last traded price
//	[51:59]  last traded quantity
//	[59:67]  average traded price
//	[67:75]  day volume
//	[91:99]  day open
//	[99:107] day high
//	[107:115] day low
//	[115:123] previous close
//	[131:139] open interest (snap-quote only)
func parseQuote(b []byte) (model.Tick, error) {
	if len(b) < 51 {
		return model.Tick{}, fmt.Errorf("frame too short: %d bytes", len(b))
	}

	exType := int(b[1])
	exchange, ok := exchangeTypeToName[exType]
	if !ok {
		exchange = fmt.Sprintf("EX_%d", exType)
	}
	token := tokenString(b[2:27])
	if token == "" {
		return model.Tick{}, errors.New("empty token")
	}

	tick := model.Tick{
		InstrumentKey: exchange + ":" + token,
		Price:         int64(binary.LittleEndian.Uint64(b[43:51])),
	}

	if ms := int64(binary.LittleEndian.Uint64(b[35:43])); ms > 0 {
		tick.TradeTS = time.UnixMilli(ms).UTC()
	} else {
		tick.TradeTS = time.Now().UTC()
	}

	if len(b) >= 123 {
		tick.Qty = int64(binary.LittleEndian.Uint64(b[51:59]))
		tick.AvgTradePrice = int64(binary.LittleEndian.Uint64(b[59:67]))
		tick.DayHigh = int64(binary.LittleEndian.Uint64(b[99:107]))
		tick.DayLow = int64(binary.LittleEndian.Uint64(b[107:115]))
		tick.PrevClose = int64(binary.LittleEndian.Uint64(b[115:123]))
	}
	if len(b) >= 139 {
		tick.OpenInterest = int64(binary.LittleEndian.Uint64(b[131:139]))
	}
	return tick, nil
}

func tokenString(b []byte) string {
	for i := range b {
		if b[i] == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
