package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/anyproto/any-sync/util/periodicsync"
	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lumilearn/lumilearn-publish-server/domain"
	"github.com/lumilearn/lumilearn-publish-server/publish/publishrepo"
	"github.com/lumilearn/lumilearn-publish-server/redisprovider"
	"github.com/lumilearn/lumilearn-publish-server/shareclient/shareapi"
	"github.com/lumilearn/lumilearn-publish-server/store"
)

const CName = "publish.service"

var log = logger.NewNamed(CName)

const cleanupPeriodSecs = 3600

func New() Service {
	return new(publishService)
}

type Service interface {
	Publish(ctx context.Context, req shareapi.PublishRequest) (resp shareapi.PublishResponse, err error)
	ToggleShare(ctx context.Context, token string, enabled bool) (resp shareapi.PublishResponse, err error)
	Resolve(ctx context.Context, token string) (payload *domain.SharedPayload, err error)
	app.ComponentRunnable
}

// ResolveCacheKey is the redis key the gateway caches resolved
// snapshots under; publish and toggle writes drop it.
func ResolveCacheKey(token string) string {
	return "lumilearn:resolve:" + token
}

type publishService struct {
	config Config
	repo   publishrepo.SnapshotRepo
	store  store.Store
	redis  redis.UniversalClient
	mux    *http.ServeMux
	server *http.Server
	ticker periodicsync.PeriodicSync
}

func (p *publishService) Init(a *app.App) (err error) {
	p.repo = a.MustComponent(publishrepo.CName).(publishrepo.SnapshotRepo)
	p.store = a.MustComponent(store.CName).(store.Store)
	p.redis = a.MustComponent(redisprovider.CName).(redisprovider.RedisProvider).Redis()
	p.config = a.MustComponent("config").(configGetter).GetPublish()
	p.mux = http.NewServeMux()
	apiHandler{s: p}.init(p.mux)
	p.server = &http.Server{Addr: p.config.Addr, Handler: p.mux}
	p.ticker = periodicsync.NewPeriodicSync(cleanupPeriodSecs, time.Minute, p.Cleanup, log)
	return
}

func (p *publishService) Name() (name string) {
	return CName
}

func (p *publishService) Run(ctx context.Context) (err error) {
	var errCh = make(chan error)
	go func() {
		errCh <- p.server.ListenAndServe()
	}()
	select {
	case err = <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		log.Info("publish api server started", zap.String("addr", p.config.Addr))
	}
	if p.config.RetentionDays > 0 {
		p.ticker.Run()
	}
	return
}

// Publish validates the request and fully replaces the snapshot at the
// token, minting a token when none is supplied. The payload is written
// to the object store first; the mongo record flips over in a single
// atomic replace, so readers never observe a partial write.
func (p *publishService) Publish(ctx context.Context, req shareapi.PublishRequest) (resp shareapi.PublishResponse, err error) {
	if req.Courses == nil {
		return resp, shareapi.ErrInvalidRequest
	}
	token := req.Token
	if token == "" {
		token = uuid.New().String()
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	payload := domain.SharedPayload{
		Courses:    req.Courses,
		HeroCover:  req.HeroCover,
		Categories: req.Categories,
	}
	if payload.Categories == nil {
		payload.Categories = []string{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	compressed := snappy.Encode(nil, data)
	key := payloadKey(token, uuid.New().String())
	if err = p.store.Put(ctx, key, bytes.NewReader(compressed)); err != nil {
		return
	}
	snapshot := domain.Snapshot{
		Token:            token,
		Enabled:          enabled,
		PayloadKey:       key,
		Size:             int64(len(compressed)),
		UpdatedTimestamp: time.Now().Unix(),
	}
	prev, existed, err := p.repo.SnapshotReplace(ctx, snapshot)
	if err != nil {
		if derr := p.store.DeletePath(ctx, key); derr != nil {
			log.Warn("orphaned payload cleanup failed", zap.String("key", key), zap.Error(derr))
		}
		return
	}
	if existed && prev.PayloadKey != "" && prev.PayloadKey != key {
		if derr := p.store.DeletePath(ctx, prev.PayloadKey); derr != nil {
			log.Warn("previous payload cleanup failed", zap.String("key", prev.PayloadKey), zap.Error(derr))
		}
	}
	p.invalidate(ctx, token)
	// The response always reports enabled=true; the stored flag still
	// governs resolution.
	return shareapi.PublishResponse{Token: token, Enabled: true}, nil
}

func (p *publishService) ToggleShare(ctx context.Context, token string, enabled bool) (resp shareapi.PublishResponse, err error) {
	snapshot, err := p.repo.SetEnabled(ctx, token, enabled)
	if err != nil {
		return
	}
	p.invalidate(ctx, token)
	return shareapi.PublishResponse{Token: snapshot.Token, Enabled: snapshot.Enabled}, nil
}

// Resolve serves the snapshot for anonymous viewers. Existence is
// checked before the enabled flag so unknown and disabled tokens stay
// distinguishable to the caller.
func (p *publishService) Resolve(ctx context.Context, token string) (payload *domain.SharedPayload, err error) {
	snapshot, err := p.repo.GetSnapshot(ctx, token)
	if err != nil {
		return
	}
	if !snapshot.Enabled {
		return nil, shareapi.ErrShareDisabled
	}
	reader, err := p.store.Get(ctx, snapshot.PayloadKey)
	if err != nil {
		return nil, fmt.Errorf("payload fetch: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()
	compressed, err := io.ReadAll(reader)
	if err != nil {
		return
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return
	}
	payload = &domain.SharedPayload{}
	if err = json.Unmarshal(data, payload); err != nil {
		return nil, err
	}
	payload.UpdatedAt = snapshot.UpdatedAt()
	return payload, nil
}

func (p *publishService) Cleanup(ctx context.Context) error {
	if p.config.RetentionDays <= 0 {
		return nil
	}
	before := time.Now().AddDate(0, 0, -p.config.RetentionDays)
	var outdated []string
	if err := p.repo.IterateOutdated(ctx, before, func(snapshot domain.Snapshot) error {
		outdated = append(outdated, snapshot.Token)
		return nil
	}); err != nil {
		return err
	}
	for _, token := range outdated {
		if err := p.store.DeletePath(ctx, tokenPath(token)); err != nil {
			log.Warn("outdated payload cleanup failed", zap.String("token", token), zap.Error(err))
			continue
		}
		if err := p.repo.DeleteSnapshot(ctx, token); err != nil {
			return err
		}
		p.invalidate(ctx, token)
	}
	if len(outdated) > 0 {
		log.Info("outdated snapshots removed", zap.Int("count", len(outdated)))
	}
	return nil
}

func (p *publishService) invalidate(ctx context.Context, token string) {
	if err := p.redis.Del(ctx, ResolveCacheKey(token)).Err(); err != nil {
		log.Warn("resolve cache invalidation failed", zap.String("token", token), zap.Error(err))
	}
}

func tokenPath(token string) string {
	return "snapshots/" + token + "/"
}

func payloadKey(token, version string) string {
	return tokenPath(token) + version
}

func (p *publishService) Close(ctx context.Context) (err error) {
	p.ticker.Close()
	if p.server != nil {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return p.server.Shutdown(ctx)
	}
	return
}
