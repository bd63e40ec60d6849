package offlinecache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	snapshot "github.com/pancrepal/offline-cache/pkg/response-snapshot"

	"golang.org/x/sync/errgroup"
)

// primeConcurrency bounds the number of parallel asset fetches.
const primeConcurrency = 4

// Install primes the static asset set into the current generation.
// If any asset fails to fetch, the install is aborted and the error
// returned: a partial asset set must never activate, retrying the whole
// install is cheaper than serving a broken offline experience.
func (c *Coordinator) Install(ctx context.Context) error {
	c.setPhase(PhaseInstalling)
	c.log.Info().Int("assets", len(c.assets)).Msg("Installing")
	if err := c.primeAssets(ctx, c.assets); err != nil {
		c.setPhase(PhaseFailed)
		c.log.Error().Err(err).Msg("Install failed")
		return err
	}
	c.setPhase(PhaseInstalled)
	return nil
}

// primeAssets fetches every URL over the network and stores its snapshot.
// The first failure cancels the remaining fetches.
func (c *Coordinator) primeAssets(ctx context.Context, urls []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(primeConcurrency)
	for _, u := range urls {
		u := u
		g.Go(func() error {
			return c.primeURL(ctx, u)
		})
	}
	return g.Wait()
}

// primeURL fetches a single URL from the origin and stores the snapshot
// under the same key an incoming request for it would produce.
func (c *Coordinator) primeURL(ctx context.Context, rawURL string) error {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("prime %s: %w", rawURL, err)
	}
	target := c.originURL.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("prime %s: %w", rawURL, err)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("prime %s: %w", rawURL, err)
	}
	defer res.Body.Close()

	if !isSuccess(res.StatusCode) {
		return fmt.Errorf("prime %s: origin returned %s", rawURL, res.Status)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("prime %s: %w", rawURL, err)
	}
	stored, err := snapshot.ToBytes(res, body)
	if err != nil {
		return fmt.Errorf("prime %s: %w", rawURL, err)
	}

	key := c.keyer.KeyForURL(http.MethodGet, target)
	if err := c.cache.Put(c.generation, key, stored); err != nil {
		return fmt.Errorf("prime %s: %w", rawURL, err)
	}
	c.log.Trace().Str("key", key).Msg("Primed asset")
	return nil
}
