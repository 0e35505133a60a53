package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lumilearn/lumilearn-publish-server/gateway/gatewayconfig"
	"github.com/lumilearn/lumilearn-publish-server/publish"
	"github.com/lumilearn/lumilearn-publish-server/redisprovider"
	"github.com/lumilearn/lumilearn-publish-server/shareclient/shareapi"
)

func New() Gateway {
	return new(gateway)
}

const CName = "publish.gateway"

var log = logger.NewNamed(CName)

const defaultCacheTTL = 60 * time.Second

// Gateway is the anonymous read side: it serves snapshot content by
// token and nothing else. Editing credentials never pass through here.
type Gateway interface {
	app.ComponentRunnable
}

type gateway struct {
	mux      *http.ServeMux
	server   *http.Server
	publish  publish.Service
	redis    redis.UniversalClient
	cacheTTL time.Duration
	config   gatewayconfig.Config
}

func (g *gateway) Name() (name string) {
	return CName
}

func (g *gateway) Init(a *app.App) (err error) {
	g.publish = a.MustComponent(publish.CName).(publish.Service)
	g.redis = a.MustComponent(redisprovider.CName).(redisprovider.RedisProvider).Redis()
	g.config = a.MustComponent("config").(gatewayconfig.ConfigGetter).GetGateway()
	g.cacheTTL = defaultCacheTTL
	if g.config.CacheTTLSec > 0 {
		g.cacheTTL = time.Duration(g.config.CacheTTLSec) * time.Second
	}
	g.mux = http.NewServeMux()
	g.mux.HandleFunc("GET /api/publish/{token}", g.resolveHandler)
	g.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotFound, errors.New("not found"))
	})
	g.server = &http.Server{Addr: g.config.Addr, Handler: g.mux}
	return
}

func (g *gateway) Run(ctx context.Context) (err error) {
	var errCh = make(chan error)
	go func() {
		errCh <- g.server.ListenAndServe()
	}()
	select {
	case err = <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		log.Info("gateway server started", zap.String("addr", g.config.Addr))
		return
	}
}

func (g *gateway) resolveHandler(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	ctx := r.Context()
	if data := g.cached(ctx, token); data != nil {
		writeData(w, data)
		return
	}
	payload, err := g.publish.Resolve(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, shareapi.ErrNotFound):
			writeErr(w, http.StatusNotFound, shareapi.ErrNotFound)
		case errors.Is(err, shareapi.ErrShareDisabled):
			writeErr(w, http.StatusForbidden, shareapi.ErrShareDisabled)
		default:
			log.Error("resolve failed", zap.String("token", token), zap.Error(err))
			writeErr(w, http.StatusInternalServerError, errors.New("internal error"))
		}
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	// Only successful resolves are cached; disabled shares must keep
	// failing closed the moment the flag flips.
	if err = g.redis.Set(ctx, publish.ResolveCacheKey(token), data, g.cacheTTL).Err(); err != nil {
		log.Warn("resolve cache store failed", zap.String("token", token), zap.Error(err))
	}
	writeData(w, data)
}

func (g *gateway) cached(ctx context.Context, token string) []byte {
	data, err := g.redis.Get(ctx, publish.ResolveCacheKey(token)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn("resolve cache read failed", zap.String("token", token), zap.Error(err))
		}
		return nil
	}
	return data
}

func writeData(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(shareapi.ErrorResponse{Error: err.Error()})
	_, _ = w.Write(data)
}

func (g *gateway) Close(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return g.server.Shutdown(ctx)
}
