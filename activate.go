package offlinecache

import (
	"context"
	"sync"
)

// Activate retires every cache generation other than the current one and
// then hands control of all registered clients to this instance.
// Deleting stale generations is the sole eviction mechanism: entries are
// never expired individually.
func (c *Coordinator) Activate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.setPhase(PhaseActivating)

	names, err := c.cache.Names()
	if err != nil {
		c.log.Error().Err(err).Msg("Could not list cache generations")
		return err
	}

	// deletions are independent of each other, but activation waits for
	// all of them to settle
	var wg sync.WaitGroup
	for _, name := range names {
		if name == c.generation {
			continue
		}
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			// a failed deletion leaves a stale generation behind,
			// it does not block the others or activation itself
			if err := c.cache.Delete(name); err != nil {
				c.log.Warn().Err(err).Str("stale", name).Msg("Could not delete stale generation")
				return
			}
			c.log.Debug().Str("stale", name).Msg("Deleted stale generation")
		}()
	}
	wg.Wait()

	c.setPhase(PhaseActive)
	c.clients.Claim(c.generation)
	c.log.Info().Msg("Activated")
	return nil
}
