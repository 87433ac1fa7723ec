package cache

func (c *Cache) Stats() (int, int) { return c.hits, c.misses }
