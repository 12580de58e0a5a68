package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"csgo-tracker/internal/config"

	"github.com/valyala/fasthttp"
)

// ErrAuthDenied means the linked account's authentication code is
// stale or wrong. The chain for that player must stop and be flagged,
// never retried automatically.
var ErrAuthDenied = errors.New("steam: authentication denied")

// ErrNoNewerCode means the player has not finished a match since the
// known code.
var ErrNoNewerCode = errors.New("steam: no newer sharing code")

const defaultSteamBaseURL = "https://api.steampowered.com"

type SteamClient struct {
	apiKey  string
	baseURL string
	client  *fasthttp.Client
}

func NewSteamClient(cfg *config.Config) *SteamClient {
	return &SteamClient{
		apiKey:  cfg.SteamAPIKey,
		baseURL: defaultSteamBaseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

type nextCodeResponse struct {
	Result struct {
		NextCode string `json:"nextcode"`
	} `json:"result"`
}

// NextCode asks the upstream service for the sharing code issued after
// knownCode for the given account. On HTTP 403 it returns
// ErrAuthDenied; when the service answers with the "n/a" sentinel it
// returns ErrNoNewerCode.
func (c *SteamClient) NextCode(ctx context.Context, steamID64, authCode, knownCode string) (string, error) {
	url := fmt.Sprintf(
		"%s/ICSGOPlayers_730/GetNextMatchSharingCode/v1?key=%s&steamid=%s&steamidkey=%s&knowncode=%s",
		c.baseURL, c.apiKey, steamID64, authCode, knownCode,
	)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := c.do(ctx, req, resp); err != nil {
		return "", err
	}

	if resp.StatusCode() == fasthttp.StatusForbidden {
		return "", ErrAuthDenied
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("steam: API error: %d", resp.StatusCode())
	}

	var result nextCodeResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", err
	}

	next := result.Result.NextCode
	if next == "" || next == "n/a" {
		return "", ErrNoNewerCode
	}
	return next, nil
}

func (c *SteamClient) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if deadline, ok := ctx.Deadline(); ok {
		return c.client.DoDeadline(req, resp, deadline)
	}
	return c.client.Do(req, resp)
}
