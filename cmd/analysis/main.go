package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"tradepulse/config"
	"tradepulse/internal/engine"
	"tradepulse/internal/feed"
	"tradepulse/internal/logger"
	"tradepulse/internal/markethours"
	"tradepulse/internal/metrics"
	"tradepulse/internal/model"
	"tradepulse/internal/notification"
	"tradepulse/internal/ringbuf"
	redisstore "tradepulse/internal/store/redis"
	sqlitestore "tradepulse/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	slogger := logger.Init("analysis", logLevel())
	log.Println("[analysis] starting...")

	cfg := config.Load()
	keys := cfg.ParseKeys()
	tfs := cfg.ParseTFs()
	log.Printf("[analysis] instruments=%v TFs=%v seconds", keys, tfs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetEnabledTFs(tfs)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- SQLite store (off hot path) ----
	os.MkdirAll("data", 0o755)
	store, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[analysis] sqlite init failed: %v", err)
	}
	defer store.Close()
	log.Println("[analysis] sqlite store ready")

	candleCh := make(chan model.Candle, 5000)
	go store.Run(ctx, candleCh)

	// ---- Redis publisher behind a circuit breaker ----
	var buffered *redisstore.BufferedPublisher
	pub, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[analysis] WARNING: redis init failed: %v (continuing without redis)", err)
	} else {
		cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
		}
		buffered = redisstore.NewBuffered(ctx, pub, cb, 10000)
		buffered.OnBuffer = func() { prom.RedisBufferedPublishes.Inc() }
		buffered.OnFlush = func(count int) {
			log.Printf("[analysis] redis recovered, flushed %d buffered publishes", count)
		}
		defer pub.Close()
		log.Println("[analysis] redis publisher ready")
	}

	if pub != nil {
		health.StartLivenessChecker(ctx, pub.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}

	// ---- Alert delivery ----
	notifier := buildNotifier(cfg)

	// ---- Broker REST client (login, backfill bars, option greeks) ----
	broker := feed.NewClient(feed.Config{
		APIKey:     cfg.BrokerAPIKey,
		ClientCode: cfg.BrokerClientCode,
		Password:   cfg.BrokerPassword,
		TOTPSecret: cfg.BrokerTOTPSecret,
	})

	// ---- Analysis engine ----
	eng := engine.New(cfg, slogger, engine.Options{
		History:   broker,
		Profiles:  store,
		Snapshots: store,
		Metrics:   prom,
		Hooks: engine.Hooks{
			OnCandleClose: func(c model.Candle) {
				select {
				case candleCh <- c:
				default:
					log.Println("[analysis] sqlite candle channel full, dropping")
				}
				if buffered != nil {
					buffered.PublishCandle(c)
				}
			},
			OnResult: func(r *model.AnalysisResult) {
				if buffered != nil {
					buffered.PublishResult(r)
				}
			},
			OnTransition: func(r *model.AnalysisResult, previous string) {
				log.Printf("[analysis] signal transition %s: %s -> %s (conviction %+d)",
					r.InstrumentKey, previous, r.PrimarySignal, r.ConvictionScore)
				if buffered != nil {
					buffered.PublishTransition(r, previous)
				}
				if alert, ok := notification.TransitionAlert(r, previous, cfg.MinConvictionScore); ok {
					go func() {
						actx, acancel := context.WithTimeout(ctx, 10*time.Second)
						defer acancel()
						notifier.Send(actx, alert)
					}()
				}
			},
		},
	})

	applyCustomLevels(eng)

	// ---- Tick path: feed -> channel -> SPSC ring -> engine ----
	tickCh := make(chan model.Tick, 10000)
	ring := ringbuf.New(8192)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-tickCh:
				if !ring.Push(t) && ring.Overflow()%1000 == 1 {
					log.Printf("[analysis] tick ring full, dropped %d total", ring.Overflow())
				}
			}
		}
	}()

	go func() {
		for {
			t, ok := ring.Pop()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Millisecond):
				}
				continue
			}
			eng.OnTick(ctx, t)
			health.SetLastTickTime(time.Now())
			health.SetInstruments(eng.Registry().Len())
		}
	}()

	// ---- Broker session lifecycle: fresh login each market open ----
	go runFeedSessions(ctx, cfg, broker, prom, health, tickCh)

	// ---- Option chain poller (optional) ----
	go runChainPoller(ctx, eng, broker)

	log.Println("[analysis] ╔══════════════════════════════════════════════════════════╗")
	log.Println("[analysis] ║  Market Analysis Engine                                  ║")
	log.Println("[analysis] ║  [Feed WS] → [Candles] → [Indicators/Profile] → [Thesis] ║")
	log.Printf("[analysis] ║  TFs: %-50v ║", tfs)
	log.Println("[analysis] ╚══════════════════════════════════════════════════════════╝")
	log.Printf("[analysis] %s", markethours.StatusString(time.Now()))

	<-sigCh
	log.Println("[analysis] shutdown signal received, finalizing session...")

	finCtx, finCancel := context.WithTimeout(context.Background(), 10*time.Second)
	eng.FinalizeSession(finCtx)
	finCancel()

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[analysis] shutdown complete.")
}

// runFeedSessions sleeps until market open, performs a fresh TOTP login and
// streams ticks until market close, then loops.
func runFeedSessions(ctx context.Context, cfg *config.Config, broker *feed.Client, prom *metrics.Metrics, health *metrics.HealthStatus, tickCh chan<- model.Tick) {
	groups, err := feed.TokenGroups(cfg.ParseKeys())
	if err != nil {
		log.Printf("[analysis] bad subscribe keys: %v, feed disabled", err)
		return
	}

	for {
		now := time.Now()
		if !markethours.IsMarketOpen(now) {
			next := markethours.NextOpen(now)
			wait := next.Sub(now)
			log.Printf("[analysis] market closed. %s", markethours.StatusString(now))
			log.Printf("[analysis] sleeping %v until next open %s",
				wait.Truncate(time.Second), next.In(markethours.IST).Format("Mon 15:04"))
			health.SetFeedConnected(false)
			prom.MarketState.Set(0)

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		log.Println("[analysis] market open — generating fresh session...")
		loginCtx, loginCancel := context.WithTimeout(ctx, 30*time.Second)
		err := broker.Login(loginCtx)
		loginCancel()
		if err != nil {
			log.Printf("[analysis] login failed: %v, retrying in 30s", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(30 * time.Second):
			}
			continue
		}

		stream, err := feed.NewStream(feed.StreamConfig{
			AuthToken:  broker.AuthToken(),
			APIKey:     cfg.BrokerAPIKey,
			ClientCode: cfg.BrokerClientCode,
			FeedToken:  broker.FeedToken(),
			Tokens:     groups,
		})
		if err != nil {
			log.Printf("[analysis] stream init failed: %v, retrying in 30s", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(30 * time.Second):
			}
			continue
		}
		stream.OnReconnect = func() {
			prom.SessionTransitions.WithLabelValues("feed_disconnect").Inc()
		}

		closeTime := markethours.TodayClose(time.Now())
		wsCtx, wsCancel := context.WithDeadline(ctx, closeTime)

		health.SetFeedConnected(true)
		prom.MarketState.Set(1)
		prom.SessionTransitions.WithLabelValues("open").Inc()
		log.Printf("[analysis] feed connected — will disconnect at %s",
			closeTime.In(markethours.IST).Format("15:04:05"))

		stream.Run(wsCtx, tickCh)
		wsCancel()

		health.SetFeedConnected(false)
		prom.MarketState.Set(0)
		prom.SessionTransitions.WithLabelValues("close").Inc()
		log.Println("[analysis] feed disconnected — market close")

		if ctx.Err() != nil {
			return
		}
	}
}

// runChainPoller refreshes option greeks for the gamma/IV signals. Disabled
// unless OPTION_UNDERLYING and OPTION_EXPIRY are set.
func runChainPoller(ctx context.Context, eng *engine.Engine, broker *feed.Client) {
	underlying := os.Getenv("OPTION_UNDERLYING") // e.g. "NIFTY"
	expiry := os.Getenv("OPTION_EXPIRY")         // e.g. "25MAR2026"
	target := os.Getenv("OPTION_CHAIN_KEY")      // instrument to attach the chain to
	if underlying == "" || expiry == "" || target == "" {
		log.Println("[analysis] option chain poller disabled (OPTION_* not set)")
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !markethours.IsMarketOpen(time.Now()) {
				continue
			}
			fetchCtx, fetchCancel := context.WithTimeout(ctx, 15*time.Second)
			rows, err := broker.OptionChain(fetchCtx, underlying, expiry)
			fetchCancel()
			if err != nil {
				log.Printf("[analysis] option chain fetch failed: %v", err)
				continue
			}
			eng.UpdateOptionChain(target, rows)
		}
	}
}

// applyCustomLevels parses CUSTOM_LEVELS, e.g.
// "NSE:26000=22000.50:22250.00,NSE:11536=4100:4180" (support:resistance in
// rupees), and installs the levels on the engine.
func applyCustomLevels(eng *engine.Engine) {
	raw := os.Getenv("CUSTOM_LEVELS")
	if raw == "" {
		return
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		eq := strings.LastIndexByte(entry, '=')
		if eq <= 0 {
			continue
		}
		key := entry[:eq]
		parts := strings.SplitN(entry[eq+1:], ":", 2)
		if len(parts) != 2 {
			continue
		}
		support, err1 := strconv.ParseFloat(parts[0], 64)
		resistance, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			log.Printf("[analysis] bad CUSTOM_LEVELS entry: %q", entry)
			continue
		}
		eng.SetCustomLevels(key, int64(support*100), int64(resistance*100))
		log.Printf("[analysis] custom levels for %s: support=%.2f resistance=%.2f",
			key, support, resistance)
	}
}

func buildNotifier(cfg *config.Config) *notification.Multi {
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[analysis] telegram alerts enabled")
	}
	if cfg.AlertWebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
		log.Println("[analysis] webhook alerts enabled")
	}
	return notification.NewMulti(backends...)
}

func logLevel() slog.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
