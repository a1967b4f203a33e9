// External link liveness: one HEAD attempt, one GET fallback, no retries.
// Bounded concurrency and per-request timeouts keep a bad corpus from hanging
// the whole run; a dead link is a finding, never an abort.

package qa

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type deadLink struct {
	URL    string
	Reason string
}

// alive treats 2xx/3xx as reachable and 429 as alive-but-throttled.
func alive(status int) bool {
	return (status >= 200 && status < 400) || status == http.StatusTooManyRequests
}

func checkLinks(ctx context.Context, urls []string, client *http.Client, concurrency int, timeout time.Duration) []deadLink {
	if len(urls) == 0 {
		return nil
	}
	if client == nil {
		client = &http.Client{}
	}

	// Keep outbound pressure polite even with the pool saturated.
	limiter := rate.NewLimiter(rate.Limit(concurrency*2), concurrency)

	var mu sync.Mutex
	var dead []deadLink
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, u := range urls {
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				return nil // run cancelled, stop quietly
			}
			if reason := probe(ctx, client, u, timeout); reason != "" {
				mu.Lock()
				dead = append(dead, deadLink{URL: u, Reason: reason})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(dead, func(i, j int) bool { return dead[i].URL < dead[j].URL })
	return dead
}

// probe returns an empty string when the URL is alive, else the failure reason.
func probe(ctx context.Context, client *http.Client, url string, timeout time.Duration) string {
	status, err := request(ctx, client, http.MethodHead, url, timeout)
	if err == nil && alive(status) {
		return ""
	}
	// Some servers reject HEAD outright; a single GET settles it.
	status, err = request(ctx, client, http.MethodGet, url, timeout)
	if err != nil {
		return err.Error()
	}
	if !alive(status) {
		return fmt.Sprintf("status %d", status)
	}
	return ""
}

func request(ctx context.Context, client *http.Client, method, url string, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
