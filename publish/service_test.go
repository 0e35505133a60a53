package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/anyproto/any-sync/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumilearn/lumilearn-publish-server/domain"
	"github.com/lumilearn/lumilearn-publish-server/publish/publishrepo"
	"github.com/lumilearn/lumilearn-publish-server/redisprovider"
	"github.com/lumilearn/lumilearn-publish-server/shareclient/shareapi"
	"github.com/lumilearn/lumilearn-publish-server/store"
)

var ctx = context.Background()

func testCourses(titles ...string) []domain.Course {
	courses := make([]domain.Course, len(titles))
	for i, title := range titles {
		courses[i] = domain.Course{Id: fmt.Sprintf("c%d", i+1), Title: title}
	}
	return courses
}

func TestPublishService_Publish(t *testing.T) {
	t.Run("mints unique tokens", func(t *testing.T) {
		fx := newFixture(t)
		seen := map[string]struct{}{}
		for i := 0; i < 50; i++ {
			resp, err := fx.svc.Publish(ctx, shareapi.PublishRequest{Courses: []domain.Course{}})
			require.NoError(t, err)
			require.NotEmpty(t, resp.Token)
			assert.True(t, resp.Enabled)
			_, dup := seen[resp.Token]
			require.False(t, dup, "token returned twice: %s", resp.Token)
			seen[resp.Token] = struct{}{}
		}
	})
	t.Run("missing courses", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Publish(ctx, shareapi.PublishRequest{})
		assert.ErrorIs(t, err, shareapi.ErrInvalidRequest)
	})
	t.Run("empty catalog is valid", func(t *testing.T) {
		fx := newFixture(t)
		resp, err := fx.svc.Publish(ctx, shareapi.PublishRequest{Courses: []domain.Course{}})
		require.NoError(t, err)
		payload, err := fx.svc.Resolve(ctx, resp.Token)
		require.NoError(t, err)
		assert.Len(t, payload.Courses, 0)
		assert.Equal(t, []string{}, payload.Categories)
	})
	t.Run("round trip", func(t *testing.T) {
		fx := newFixture(t)
		before := time.Now().Add(-time.Second)
		req := shareapi.PublishRequest{
			Courses:    testCourses("Go basics", "Systems design"),
			HeroCover:  domain.HeroCover{BadgeText: "new", HeadlinePrefix: "learn"},
			Categories: []string{"tech", "design"},
		}
		resp, err := fx.svc.Publish(ctx, req)
		require.NoError(t, err)
		payload, err := fx.svc.Resolve(ctx, resp.Token)
		require.NoError(t, err)
		assert.Equal(t, req.Courses, payload.Courses)
		assert.Equal(t, req.HeroCover, payload.HeroCover)
		assert.Equal(t, req.Categories, payload.Categories)
		assert.False(t, payload.UpdatedAt.Before(before))
	})
	t.Run("second publish fully supersedes", func(t *testing.T) {
		fx := newFixture(t)
		resp, err := fx.svc.Publish(ctx, shareapi.PublishRequest{Courses: testCourses("A", "B")})
		require.NoError(t, err)
		_, err = fx.svc.Publish(ctx, shareapi.PublishRequest{Token: resp.Token, Courses: testCourses("A", "B", "C")})
		require.NoError(t, err)
		payload, err := fx.svc.Resolve(ctx, resp.Token)
		require.NoError(t, err)
		require.Len(t, payload.Courses, 3)
		assert.Equal(t, "C", payload.Courses[2].Title)
		// superseded payload blob is dropped
		assert.Equal(t, 1, fx.store.countPrefix("snapshots/"+resp.Token+"/"))
	})
	t.Run("publish disabled then resolve", func(t *testing.T) {
		fx := newFixture(t)
		disabled := false
		resp, err := fx.svc.Publish(ctx, shareapi.PublishRequest{Courses: testCourses("A"), Enabled: &disabled})
		require.NoError(t, err)
		// response reports enabled regardless, the stored flag rules resolution
		assert.True(t, resp.Enabled)
		_, err = fx.svc.Resolve(ctx, resp.Token)
		assert.ErrorIs(t, err, shareapi.ErrShareDisabled)
	})
	t.Run("invalidates resolve cache", func(t *testing.T) {
		fx := newFixture(t)
		resp, err := fx.svc.Publish(ctx, shareapi.PublishRequest{Courses: testCourses("A")})
		require.NoError(t, err)
		require.NoError(t, fx.redis.Set(ResolveCacheKey(resp.Token), "stale"))
		_, err = fx.svc.Publish(ctx, shareapi.PublishRequest{Token: resp.Token, Courses: testCourses("B")})
		require.NoError(t, err)
		assert.False(t, fx.redis.Exists(ResolveCacheKey(resp.Token)))
	})
}

func TestPublishService_Resolve(t *testing.T) {
	t.Run("unknown token", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Resolve(ctx, "never-published")
		assert.ErrorIs(t, err, shareapi.ErrNotFound)
	})
}

func TestPublishService_ToggleShare(t *testing.T) {
	t.Run("unknown token", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.ToggleShare(ctx, "never-published", true)
		assert.ErrorIs(t, err, shareapi.ErrNotFound)
	})
	t.Run("toggle does not erase content", func(t *testing.T) {
		fx := newFixture(t)
		resp, err := fx.svc.Publish(ctx, shareapi.PublishRequest{Courses: testCourses("A", "B")})
		require.NoError(t, err)

		toggled, err := fx.svc.ToggleShare(ctx, resp.Token, false)
		require.NoError(t, err)
		assert.False(t, toggled.Enabled)
		_, err = fx.svc.Resolve(ctx, resp.Token)
		assert.ErrorIs(t, err, shareapi.ErrShareDisabled)

		toggled, err = fx.svc.ToggleShare(ctx, resp.Token, true)
		require.NoError(t, err)
		assert.True(t, toggled.Enabled)
		payload, err := fx.svc.Resolve(ctx, resp.Token)
		require.NoError(t, err)
		assert.Len(t, payload.Courses, 2)
	})
}

func TestPublishService_Cleanup(t *testing.T) {
	fx := newFixture(t)
	fx.svc.(*publishService).config.RetentionDays = 7
	resp, err := fx.svc.Publish(ctx, shareapi.PublishRequest{Courses: testCourses("A")})
	require.NoError(t, err)
	// age the record past retention
	fx.repo.age(resp.Token, time.Now().AddDate(0, 0, -8))
	require.NoError(t, fx.svc.(*publishService).Cleanup(ctx))
	_, err = fx.svc.Resolve(ctx, resp.Token)
	assert.ErrorIs(t, err, shareapi.ErrNotFound)
	assert.Equal(t, 0, fx.store.countPrefix("snapshots/"+resp.Token+"/"))
}

func TestApiHandler(t *testing.T) {
	newServer := func(t *testing.T) (*fixture, *httptest.Server) {
		fx := newFixture(t)
		srv := httptest.NewServer(fx.svc.(*publishService).mux)
		t.Cleanup(srv.Close)
		return fx, srv
	}
	postJson := func(t *testing.T, url, body string) *http.Response {
		resp, err := http.Post(url, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	t.Run("publish ok", func(t *testing.T) {
		_, srv := newServer(t)
		resp := postJson(t, srv.URL+"/api/publish", `{"courses":[]}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var result shareapi.PublishResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.NotEmpty(t, result.Token)
		assert.True(t, result.Enabled)
	})
	t.Run("publish missing courses", func(t *testing.T) {
		_, srv := newServer(t)
		resp := postJson(t, srv.URL+"/api/publish", `{"heroCover":{}}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("publish courses not a sequence", func(t *testing.T) {
		_, srv := newServer(t)
		resp := postJson(t, srv.URL+"/api/publish", `{"courses":"nope"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("toggle unknown token", func(t *testing.T) {
		_, srv := newServer(t)
		resp := postJson(t, srv.URL+"/api/publish/no-such/toggle", `{"enabled":false}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
	t.Run("health", func(t *testing.T) {
		_, srv := newServer(t)
		resp, err := http.Get(srv.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

type fixture struct {
	a     *app.App
	svc   Service
	repo  *repoFake
	store *storeFake
	redis *redisFixture
}

func newFixture(t testing.TB) *fixture {
	mr := miniredis.RunT(t)
	fx := &fixture{
		a:     new(app.App),
		svc:   New(),
		repo:  newRepoFake(),
		store: newStoreFake(),
		redis: &redisFixture{mr: mr},
	}
	fx.a.Register(&testConfig{
		publish: Config{Addr: "127.0.0.1:0"},
		redis:   redisprovider.Config{Url: "redis://" + mr.Addr()},
	}).
		Register(redisprovider.New()).
		Register(fx.repo).
		Register(fx.store).
		Register(fx.svc)
	require.NoError(t, fx.a.Start(ctx))
	t.Cleanup(func() {
		require.NoError(t, fx.a.Close(ctx))
	})
	return fx
}

type testConfig struct {
	publish Config
	redis   redisprovider.Config
}

func (t testConfig) Init(a *app.App) (err error) { return }

func (t testConfig) Name() (name string) { return "config" }

func (t testConfig) GetPublish() Config {
	return t.publish
}

func (t testConfig) GetRedis() redisprovider.Config {
	return t.redis
}

type redisFixture struct {
	mr *miniredis.Miniredis
}

func (r *redisFixture) Set(key, value string) error {
	return r.mr.Set(key, value)
}

func (r *redisFixture) Exists(key string) bool {
	return r.mr.Exists(key)
}

type repoFake struct {
	mu        sync.Mutex
	snapshots map[string]domain.Snapshot
}

func newRepoFake() *repoFake {
	return &repoFake{snapshots: map[string]domain.Snapshot{}}
}

func (r *repoFake) Init(a *app.App) (err error) { return }

func (r *repoFake) Name() (name string) { return publishrepo.CName }

func (r *repoFake) Run(ctx context.Context) error { return nil }

func (r *repoFake) Close(ctx context.Context) error { return nil }

func (r *repoFake) SnapshotReplace(ctx context.Context, snapshot domain.Snapshot) (prev domain.Snapshot, existed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, existed = r.snapshots[snapshot.Token]
	r.snapshots[snapshot.Token] = snapshot
	return
}

func (r *repoFake) GetSnapshot(ctx context.Context, token string) (snapshot domain.Snapshot, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot, ok := r.snapshots[token]
	if !ok {
		return domain.Snapshot{}, shareapi.ErrNotFound
	}
	return snapshot, nil
}

func (r *repoFake) SetEnabled(ctx context.Context, token string, enabled bool) (snapshot domain.Snapshot, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot, ok := r.snapshots[token]
	if !ok {
		return domain.Snapshot{}, shareapi.ErrNotFound
	}
	snapshot.Enabled = enabled
	snapshot.UpdatedTimestamp = time.Now().Unix()
	r.snapshots[token] = snapshot
	return snapshot, nil
}

func (r *repoFake) IterateOutdated(ctx context.Context, before time.Time, do func(snapshot domain.Snapshot) error) error {
	r.mu.Lock()
	var outdated []domain.Snapshot
	for _, snapshot := range r.snapshots {
		if snapshot.UpdatedTimestamp < before.Unix() {
			outdated = append(outdated, snapshot)
		}
	}
	r.mu.Unlock()
	for _, snapshot := range outdated {
		if err := do(snapshot); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoFake) DeleteSnapshot(ctx context.Context, token string) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.snapshots, token)
	return nil
}

func (r *repoFake) age(token string, to time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.snapshots[token]
	snapshot.UpdatedTimestamp = to.Unix()
	r.snapshots[token] = snapshot
}

type storeFake struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newStoreFake() *storeFake {
	return &storeFake{objects: map[string][]byte{}}
}

func (s *storeFake) Init(a *app.App) (err error) { return }

func (s *storeFake) Name() (name string) { return store.CName }

func (s *storeFake) Put(ctx context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *storeFake) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *storeFake) DeletePath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.objects {
		if strings.HasPrefix(key, path) {
			delete(s.objects, key)
		}
	}
	return nil
}

func (s *storeFake) countPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}
