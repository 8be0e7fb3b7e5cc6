// Package catalog keeps the shared enumeration of symbolic names.
//
// Every type name, field name, enum member, operation and error kind written
// to a table must first be registered here. The catalog only grows: adding a
// name twice is a no-op, so concurrent registration from several processes
// is safe. A local cache avoids a round trip per already known name.
package catalog

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/text/unicode/norm"

	"codeberg.org/mentalblood/cnvyr/internal/item"
	"codeberg.org/mentalblood/cnvyr/internal/schema"
)

// Catalog is safe for concurrent use.
type Catalog struct {
	dialect schema.Dialect

	mu     sync.Mutex
	loaded bool
	names  map[string]struct{}
}

// New returns an empty catalog cache for the dialect.
func New(d schema.Dialect) *Catalog {
	return &Catalog{dialect: d, names: make(map[string]struct{})}
}

// Register makes every name a member of the database catalog.
// The first call creates the catalog if needed and loads its members.
//
// On PostgreSQL new enum values cannot be used inside the transaction that
// added them, so q should not be a transaction that later writes them.
func (c *Catalog) Register(ctx context.Context, q schema.Querier, names ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		if err := c.load(ctx, q); err != nil {
			return err
		}
	}

	var missing []string
	for _, n := range names {
		n = norm.NFC.String(n)
		if _, ok := c.names[n]; ok || slices.Contains(missing, n) {
			continue
		}
		missing = append(missing, n)
	}

	for _, n := range missing {
		query, args := c.dialect.AddEnumMember(n)
		if args != nil {
			query = c.dialect.Rebind(query)
		}
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("register %q: %w", n, err)
		}
		c.names[n] = struct{}{}
	}
	return nil
}

func (c *Catalog) load(ctx context.Context, q schema.Querier) error {
	if _, err := q.ExecContext(ctx, c.dialect.EnumCatalogDDL()); err != nil && !c.dialect.IsDuplicateObject(err) {
		return fmt.Errorf("create catalog: %w", err)
	}

	rows, err := q.QueryContext(ctx, c.dialect.EnumMembersQuery())
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan catalog member: %w", err)
		}
		c.names[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate catalog: %w", err)
	}

	c.loaded = true
	return nil
}

// Has reports whether name is known to be registered.
func (c *Catalog) Has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.names[norm.NFC.String(name)]
	return ok
}

// Len returns the number of cached names.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.names)
}

// Reset drops the cache. The next Register reloads it from the database.
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.names = make(map[string]struct{})
}

// Names returns every symbolic name a type implies: its name, its field
// names and the members of its enum types.
func Names(desc *item.Descriptor) []string {
	names := []string{desc.Name()}
	for _, f := range desc.Fields() {
		names = append(names, f.Name)
	}
	for _, e := range desc.EnumTypes() {
		names = append(names, e.Members...)
	}
	return names
}
