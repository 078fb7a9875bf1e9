// Package sqlite reads news content and category subscribers directly from
// the site's SQLite database. The database is opened read-only.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/newspaper/mailing/internal/digest"
)

// Compile-time interface guards.
var (
	_ digest.ContentSource      = (*Source)(nil)
	_ digest.SubscriberResolver = (*Source)(nil)
)

// Source implements digest.ContentSource and digest.SubscriberResolver.
type Source struct {
	db  *sql.DB
	loc *time.Location

	postsQuery       string
	categoriesQuery  string
	subscribersQuery string
}

// Open opens the site database in query-only mode.
func Open(ctx context.Context, cfg Config) (*Source, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=query_only(1)&_pragma=busy_timeout(%d)", cfg.Path, cfg.BusyTimeout)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("content: open %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("content: ping %s: %w", cfg.Path, err)
	}
	return New(db, cfg), nil
}

// New wraps an open database.
func New(db *sql.DB, cfg Config) *Source {
	cfg.Defaults()
	p := cfg.TablePrefix
	return &Source{
		db:  db,
		loc: cfg.Location,
		postsQuery: fmt.Sprintf(
			`SELECT id, title, text, date_creation FROM %[1]spost
			WHERE date_creation >= ? AND date_creation < ?
			ORDER BY date_creation, id`, p),
		categoriesQuery: fmt.Sprintf(
			`SELECT pc.post_id, c.id, c.name
			FROM %[1]spostcategory pc
			JOIN %[1]scategory c ON c.id = pc.category_id
			JOIN %[1]spost p ON p.id = pc.post_id
			WHERE p.date_creation >= ? AND p.date_creation < ?
			ORDER BY pc.id`, p),
		subscribersQuery: fmt.Sprintf(
			`SELECT DISTINCT u.email
			FROM %[1]scategory_subscribers s
			JOIN %[2]s u ON u.id = s.user_id
			WHERE s.category_id = ? AND u.email <> ''
			ORDER BY u.email`, p, cfg.UserTable),
	}
}

// Close closes the database.
func (s *Source) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("content: close: %w", err)
	}
	return nil
}

// Stop closes the database as part of application shutdown.
func (s *Source) Stop(context.Context) error { return s.Close() }

// ListCreatedBetween implements digest.ContentSource. Items are ordered by
// creation time and carry their categories in link order.
func (s *Source) ListCreatedBetween(ctx context.Context, start, end time.Time) ([]digest.Item, error) {
	from, to := formatSiteTime(start, s.loc), formatSiteTime(end, s.loc)

	rows, err := s.db.QueryContext(ctx, s.postsQuery, from, to)
	if err != nil {
		return nil, fmt.Errorf("content: list posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []digest.Item
	index := make(map[int64]int)
	for rows.Next() {
		var (
			it      digest.Item
			created = siteTime{loc: s.loc}
		)
		if err := rows.Scan(&it.ID, &it.Title, &it.Text, &created); err != nil {
			return nil, fmt.Errorf("content: scan post: %w", err)
		}
		it.CreatedAt = created.Time
		index[it.ID] = len(items)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content: iterate posts: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	if err := s.attachCategories(ctx, items, index, from, to); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Source) attachCategories(ctx context.Context, items []digest.Item, index map[int64]int, from, to string) error {
	rows, err := s.db.QueryContext(ctx, s.categoriesQuery, from, to)
	if err != nil {
		return fmt.Errorf("content: list post categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			postID int64
			c      digest.Category
		)
		if err := rows.Scan(&postID, &c.ID, &c.Name); err != nil {
			return fmt.Errorf("content: scan post category: %w", err)
		}
		if i, ok := index[postID]; ok {
			items[i].Categories = append(items[i].Categories, c)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("content: iterate post categories: %w", err)
	}
	return nil
}

// SubscribersOf implements digest.SubscriberResolver.
func (s *Source) SubscribersOf(ctx context.Context, c digest.Category) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.subscribersQuery, c.ID)
	if err != nil {
		return nil, fmt.Errorf("content: subscribers of %q: %w", c.Name, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("content: scan subscriber: %w", err)
		}
		out = append(out, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content: iterate subscribers: %w", err)
	}
	return out, nil
}
