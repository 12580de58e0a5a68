package api

import (
	"context"
	"fmt"
	"time"

	"csgo-tracker/internal/config"

	"github.com/valyala/fasthttp"
)

// WorkerClient is the coordinator's HTTP client for remote demo
// workers. Workers expose GET /health and accept jobs via
// POST /demo/{code}.
type WorkerClient struct {
	password string
	client   *fasthttp.Client
}

func NewWorkerClient(cfg *config.Config) *WorkerClient {
	return &WorkerClient{
		password: cfg.WorkerPassword,
		client: &fasthttp.Client{
			MaxConnsPerHost:     10,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

// Health probes a worker. Any non-2xx answer or transport error means
// the worker is considered dead.
func (c *WorkerClient) Health(ctx context.Context, address string) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(address + "/health")
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := c.do(ctx, req, resp); err != nil {
		return fmt.Errorf("worker %s unreachable: %w", address, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("worker %s health returned %d", address, resp.StatusCode())
	}
	return nil
}

// SubmitJob hands a sharing code to a worker. The worker reports the
// outcome later through the completion callback.
func (c *WorkerClient) SubmitJob(ctx context.Context, address, code string) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/demo/%s", address, code))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.Set("X-Worker-Key", c.password)

	if err := c.do(ctx, req, resp); err != nil {
		return fmt.Errorf("worker %s unreachable: %w", address, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("worker %s rejected job: %d", address, resp.StatusCode())
	}
	return nil
}

func (c *WorkerClient) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if deadline, ok := ctx.Deadline(); ok {
		return c.client.DoDeadline(req, resp, deadline)
	}
	return c.client.Do(req, resp)
}
