package shareclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lumilearn/lumilearn-publish-server/domain"
	"github.com/lumilearn/lumilearn-publish-server/shareclient/shareapi"
)

const defaultTimeout = 30 * time.Second

// Client talks to the publish api and the gateway over plain HTTP.
type Client interface {
	Publish(ctx context.Context, req shareapi.PublishRequest) (resp shareapi.PublishResponse, err error)
	Resolve(ctx context.Context, token string) (payload *domain.SharedPayload, err error)
	ToggleShare(ctx context.Context, token string, enabled bool) (resp shareapi.PublishResponse, err error)
}

func New(conf Config) Client {
	gatewayURL := conf.GatewayURL
	if gatewayURL == "" {
		gatewayURL = conf.PublishURL
	}
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &shareClient{
		publishURL: conf.PublishURL,
		gatewayURL: gatewayURL,
		http:       &http.Client{Timeout: timeout},
	}
}

type shareClient struct {
	publishURL string
	gatewayURL string
	http       *http.Client
}

func (c *shareClient) Publish(ctx context.Context, req shareapi.PublishRequest) (resp shareapi.PublishResponse, err error) {
	err = c.doJson(ctx, http.MethodPost, c.publishURL+"/api/publish", req, &resp)
	return
}

func (c *shareClient) Resolve(ctx context.Context, token string) (payload *domain.SharedPayload, err error) {
	payload = &domain.SharedPayload{}
	if err = c.doJson(ctx, http.MethodGet, c.gatewayURL+"/api/publish/"+url.PathEscape(token), nil, payload); err != nil {
		return nil, err
	}
	return
}

func (c *shareClient) ToggleShare(ctx context.Context, token string, enabled bool) (resp shareapi.PublishResponse, err error) {
	req := shareapi.ToggleRequest{Enabled: enabled}
	err = c.doJson(ctx, http.MethodPost, c.publishURL+"/api/publish/"+url.PathEscape(token)+"/toggle", req, &resp)
	return
}

func (c *shareClient) doJson(ctx context.Context, method, url string, in, out any) (err error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shareapi.ErrNetworkFailure, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return statusErr(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusErr(resp *http.Response) error {
	var errResp shareapi.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return shareapi.ErrInvalidRequest
	case http.StatusNotFound:
		return shareapi.ErrNotFound
	case http.StatusForbidden:
		return shareapi.ErrShareDisabled
	}
	if errResp.Error != "" {
		return fmt.Errorf("%w: %s", shareapi.ErrNetworkFailure, errResp.Error)
	}
	return fmt.Errorf("%w: unexpected status %d", shareapi.ErrNetworkFailure, resp.StatusCode)
}
