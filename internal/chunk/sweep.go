package chunk

import "time"

// Start runs the background sweep until Close. Calling Start twice has no
// effect.
func (c *Cache) Start() {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done)
}

// Close stops the background sweep and waits for in-flight preloads.
func (c *Cache) Close() {
	c.stopMu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.stopMu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	c.warm.Wait()
}

func (c *Cache) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep evicts every resident chunk, across all books, not accessed within
// StaleAfter.
func (c *Cache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.cfg.StaleAfter)
	evicted := 0
	for _, t := range c.books {
		for i, e := range t.resident {
			if e.lastAccess.Before(cutoff) {
				delete(t.resident, i)
				evicted++
			}
		}
	}
	if evicted > 0 {
		c.log.Debug().Int("evicted", evicted).Msg("swept stale chunks")
	}
	return evicted
}
