package lookup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Entry holds the facts resolved for one account and region.
type Entry struct {
	Account           string   `yaml:"account"`
	Region            string   `yaml:"region"`
	AvailabilityZones []string `yaml:"availabilityZones"`
}

// Cache is the content of the lookup file.
type Cache struct {
	Entries []Entry `yaml:"entries"`
}

// Put adds or replaces the entry for its account and region.
func (c *Cache) Put(e Entry) {
	for i, existing := range c.Entries {
		if existing.Account == e.Account && existing.Region == e.Region {
			c.Entries[i] = e
			return
		}
	}
	c.Entries = append(c.Entries, e)
	sort.Slice(c.Entries, func(i, j int) bool {
		if c.Entries[i].Account != c.Entries[j].Account {
			return c.Entries[i].Account < c.Entries[j].Account
		}
		return c.Entries[i].Region < c.Entries[j].Region
	})
}

// AvailabilityZones returns the cached zones for account and region, or nil.
// A nil cache has no zones.
func (c *Cache) AvailabilityZones(account, region string) []string {
	if c == nil {
		return nil
	}
	for _, e := range c.Entries {
		if e.Account == account && e.Region == region {
			return e.AvailabilityZones
		}
	}
	return nil
}

// Merge copies every entry of other into c.
func (c *Cache) Merge(other *Cache) {
	if other == nil {
		return
	}
	for _, e := range other.Entries {
		c.Put(e)
	}
}

// LoadCache reads the lookup file. A missing file yields an empty cache.
func LoadCache(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Cache{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading lookup cache: %w", err)
	}
	var c Cache
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing lookup cache %s: %w", path, err)
	}
	return &c, nil
}

// Save writes the cache to path.
func (c *Cache) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing lookup cache: %w", err)
	}
	return nil
}
