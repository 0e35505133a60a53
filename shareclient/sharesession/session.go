package sharesession

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lumilearn/lumilearn-publish-server/domain"
	"github.com/lumilearn/lumilearn-publish-server/shareclient"
	"github.com/lumilearn/lumilearn-publish-server/shareclient/localstate"
	"github.com/lumilearn/lumilearn-publish-server/shareclient/shareapi"
)

// Query parameters carried by share links. ShareParam holds the token,
// PreviewParam (value "1") switches the editor into preview mode.
const (
	ShareParam   = "share"
	PreviewParam = "preview"
)

// ErrNotPublished is returned by ToggleShare before the first publish.
var ErrNotPublished = errors.New("not published yet")

const defaultFetchTimeout = 10 * time.Second

type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Location is the share-relevant part of the current URL. Shared and
// preview mode are pure functions of it, never independent state.
type Location struct {
	Token   string
	Preview bool
}

func LocationFromURL(rawURL string) Location {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Location{}
	}
	q := u.Query()
	return Location{
		Token:   q.Get(ShareParam),
		Preview: q.Get(PreviewParam) == "1",
	}
}

// Session is the process-wide client share state: it derives
// shared/preview mode from the navigable URL, fetches snapshot data for
// a URL token, and picks the effective data for all read surfaces.
// Lifecycle is one page load; construct a new one per load.
type Session struct {
	client       shareclient.Client
	local        localstate.Store
	fetchTimeout time.Duration

	mu           sync.Mutex
	loc          Location
	state        State
	shared       *domain.SharedPayload
	fetchErr     error
	gen          uint64
	subs         []chan struct{}
	localToken   string
	shareEnabled bool
}

type Option func(*Session)

func WithFetchTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.fetchTimeout = d
	}
}

func New(client shareclient.Client, local localstate.Store, opts ...Option) *Session {
	s := &Session{
		client:       client,
		local:        local,
		fetchTimeout: defaultFetchTimeout,
		state:        StateIdle,
		shareEnabled: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if token, ok := local.Get(localstate.KeyShareToken); ok {
		s.localToken = string(token)
	}
	if enabled, ok := local.Get(localstate.KeyShareEnabled); ok {
		s.shareEnabled = string(enabled) != "0"
	}
	return s
}

// Navigate reacts to a URL change, including back/forward navigation.
// A token change re-enters Loading and refetches; leaving the token
// behind clears shared data and any previous error. An in-flight fetch
// superseded by a later navigation never overwrites state.
func (s *Session) Navigate(rawURL string) {
	loc := LocationFromURL(rawURL)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.loc
	s.loc = loc
	switch {
	case loc.Token == "":
		s.gen++
		s.state = StateIdle
		s.shared = nil
		s.fetchErr = nil
	case loc.Token != prev.Token:
		s.startFetchLocked(loc.Token)
	}
	s.notifyLocked()
}

func (s *Session) startFetchLocked(token string) {
	s.gen++
	gen := s.gen
	s.state = StateLoading
	s.shared = nil
	s.fetchErr = nil
	go s.fetch(gen, token)
}

func (s *Session) fetch(gen uint64, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()
	payload, err := s.client.Resolve(ctx, token)
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// superseded by a later navigation
		return
	}
	if err != nil {
		s.state = StateFailed
		s.fetchErr = err
	} else {
		s.state = StateReady
		s.shared = payload
	}
	s.notifyLocked()
}

// Subscribe returns a channel that receives a tick on every session
// change. The channel is never closed; drop it with the session.
func (s *Session) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Session) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchErr
}

func (s *Session) Location() Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

func (s *Session) IsSharedView() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc.Token != ""
}

func (s *Session) IsPreviewMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc.Preview
}

// IsViewOnly reports whether every editing affordance must be
// suppressed: shared view or preview mode.
func (s *Session) IsViewOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc.Token != "" || s.loc.Preview
}

// SharedData returns a deep copy of the fetched snapshot, or nil
// outside Ready.
func (s *Session) SharedData() *domain.SharedPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shared == nil {
		return nil
	}
	cp := s.shared.Clone()
	return &cp
}

// EffectiveData picks what read surfaces render: the fetched snapshot
// in shared view once Ready, the local catalog otherwise. Preview mode
// intentionally stays on local data. The returned shared payload is a
// deep copy, so local mutations (view counters and the like) can never
// reach the snapshot.
func (s *Session) EffectiveData(local domain.SharedPayload) domain.SharedPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc.Token != "" && s.state == StateReady && s.shared != nil {
		return s.shared.Clone()
	}
	return local
}

// Publish publishes the local catalog state, reusing the editor's
// last-published token so repeated publishes update the same share.
func (s *Session) Publish(ctx context.Context, data domain.SharedPayload) (token string, err error) {
	s.mu.Lock()
	req := shareapi.PublishRequest{
		Token:      s.localToken,
		Courses:    data.Courses,
		HeroCover:  data.HeroCover,
		Categories: data.Categories,
	}
	s.mu.Unlock()
	if req.Courses == nil {
		req.Courses = []domain.Course{}
	}
	resp, err := s.client.Publish(ctx, req)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.localToken = resp.Token
	s.shareEnabled = resp.Enabled
	s.mu.Unlock()
	s.persist()
	return resp.Token, nil
}

func (s *Session) ToggleShare(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	token := s.localToken
	s.mu.Unlock()
	if token == "" {
		return ErrNotPublished
	}
	resp, err := s.client.ToggleShare(ctx, token, enabled)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.shareEnabled = resp.Enabled
	s.mu.Unlock()
	s.persist()
	return nil
}

func (s *Session) persist() {
	s.mu.Lock()
	token, enabled := s.localToken, s.shareEnabled
	s.mu.Unlock()
	_ = s.local.Set(localstate.KeyShareToken, []byte(token))
	flag := "1"
	if !enabled {
		flag = "0"
	}
	_ = s.local.Set(localstate.KeyShareEnabled, []byte(flag))
}

func (s *Session) ShareToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localToken
}

func (s *Session) ShareEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shareEnabled
}

// ShareURL builds the viewer link for the editor's token; the token is
// query-escaped so the link survives copy/paste.
func (s *Session) ShareURL(base string) (string, error) {
	s.mu.Lock()
	token := s.localToken
	s.mu.Unlock()
	if token == "" {
		return "", ErrNotPublished
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(ShareParam, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PreviewURL builds the editor self-review link on the same base.
func PreviewURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(PreviewParam, "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExitPreviewURL strips the preview flag and points back at the
// application root; leaving preview is a navigation, not a state flip.
func ExitPreviewURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "/"
	}
	q := u.Query()
	q.Del(PreviewParam)
	u.RawQuery = q.Encode()
	u.Path = "/"
	u.Fragment = ""
	return u.String()
}

// RedirectForPath gates editing surfaces at the routing layer: while
// view-only, every editing entry point resolves to the home view
// instead of mounting.
func (s *Session) RedirectForPath(path string) (redirect string, ok bool) {
	if !s.IsViewOnly() {
		return "", false
	}
	if !isEditingPath(path) {
		return "", false
	}
	return "/", true
}

func isEditingPath(path string) bool {
	switch path {
	case "/edit-cover", "/create-course", "/share-settings":
		return true
	}
	return strings.HasPrefix(path, "/course/") && strings.HasSuffix(path, "/edit")
}
