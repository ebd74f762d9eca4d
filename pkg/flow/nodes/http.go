package nodes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/manifold-flow/manifold/pkg/flow"
	"github.com/manifold-flow/manifold/pkg/value"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPNode performs one HTTP request and reports the response status and
// body. 429 and 5xx responses are surfaced as transient errors so the
// engine's retry policy applies.
type HTTPNode struct {
	// Client overrides the default client, used by tests.
	Client *http.Client
}

type httpPrep struct {
	method  string
	url     string
	body    string
	headers map[string]string
	timeout time.Duration
}

type httpResult struct {
	status int
	body   string
}

func (n *HTTPNode) Prep(_ context.Context, in *flow.Invocation) (any, error) {
	url := in.Params.GetString("url")
	if url == "" {
		return nil, fmt.Errorf("http: missing 'url' param")
	}
	p := httpPrep{
		method:  strings.ToUpper(in.Params.GetString("method")),
		url:     url,
		body:    in.Params.GetString("body"),
		timeout: defaultHTTPTimeout,
	}
	if p.method == "" {
		p.method = http.MethodGet
	}
	if ts := in.Params.GetString("timeout"); ts != "" {
		d, err := time.ParseDuration(ts)
		if err != nil {
			return nil, fmt.Errorf("http: invalid timeout %q: %w", ts, err)
		}
		p.timeout = d
	}
	if hv, ok := in.Params.Get("headers"); ok {
		hm, isMap := hv.AsMap()
		if !isMap {
			return nil, fmt.Errorf("http: 'headers' param must be a map")
		}
		p.headers = make(map[string]string, hm.Len())
		for _, k := range hm.Keys() {
			p.headers[k] = hm.GetString(k)
		}
	}
	return p, nil
}

func (n *HTTPNode) Exec(ctx context.Context, prep any) (any, error) {
	p := prep.(httpPrep)

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: p.timeout}
	}

	var bodyReader io.Reader
	if p.body != "" {
		bodyReader = strings.NewReader(p.body)
	}
	req, err := http.NewRequestWithContext(ctx, p.method, p.url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("http: build request: %w", err)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, flow.MarkTransient(fmt.Errorf("http: %s %s: %w", p.method, p.url, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http: read body: %w", err)
	}

	res := httpResult{status: resp.StatusCode, body: string(data)}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, flow.MarkTransient(fmt.Errorf("http: %s %s: status %d", p.method, p.url, resp.StatusCode))
	}
	return res, nil
}

func (n *HTTPNode) Post(_ context.Context, _ *flow.Invocation, _, exec any) (flow.Outcome, error) {
	res := exec.(httpResult)
	out := value.NewMap()
	out.Set("status", value.Int(int64(res.status)))
	out.Set("body", value.String(res.body))
	return flow.Outcome{Outputs: out}, nil
}
