package handler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codearena-api/internal/middleware"
	"github.com/noah-isme/codearena-api/internal/realtime"
	"github.com/noah-isme/codearena-api/internal/service"
	"github.com/noah-isme/codearena-api/internal/utils"
)

const liveKeepalive = 30 * time.Second

// snapshotFunc loads the current state pushed to a client right after it connects.
type snapshotFunc func(ctx context.Context) (interface{}, error)

// requireUpgrade rejects plain HTTP requests on live endpoints and carries the correlation id over.
func requireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return utils.SendError(c, fiber.StatusUpgradeRequired, "websocket upgrade required")
	}
	c.Locals("request_ctx", requestContext(c))
	return c.Next()
}

func identityFromConn(conn *websocket.Conn) service.Identity {
	return identityFromLocals(func(key string) interface{} { return conn.Locals(key) })
}

func connContext(conn *websocket.Conn) context.Context {
	if ctx, ok := conn.Locals("request_ctx").(context.Context); ok && ctx != nil {
		return ctx
	}
	return context.Background()
}

// streamTopic sends the snapshot and then every push on topic until the client goes away.
func streamTopic(conn *websocket.Conn, feed realtime.Subscriber, topic string, snapshot snapshotFunc, base zerolog.Logger) {
	ctx, cancel := context.WithCancel(connContext(conn))
	defer cancel()
	logger := middleware.LoggerWithCorrelation(ctx, base).With().Str("topic", topic).Logger()

	// Subscribe before loading the snapshot so no change falls between the two.
	updates, unsubscribe := feed.Subscribe(topic)
	defer unsubscribe()

	var once sync.Once
	closed := make(chan struct{})
	closeConn := func() {
		once.Do(func() {
			close(closed)
			_ = conn.Close()
		})
	}
	defer closeConn()

	if snapshot != nil {
		state, err := snapshot(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("live snapshot failed")
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "snapshot unavailable"))
			return
		}
		raw, err := json.Marshal(state)
		if err != nil {
			logger.Error().Err(err).Msg("encode live snapshot")
			return
		}
		if err := conn.WriteJSON(realtime.Message{Topic: topic, Payload: raw, SentAt: time.Now().UTC()}); err != nil {
			return
		}
	}

	go func() {
		defer closeConn()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Debug().Msg("live client connected")
	keepalive := time.NewTicker(liveKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case msg, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Msg("live write ended")
				return
			}
		case <-keepalive.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				return
			}
		case <-closed:
			logger.Debug().Msg("live client disconnected")
			return
		}
	}
}
