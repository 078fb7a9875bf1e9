// Package digest builds the weekly per-category news digest and mails it to
// each category's subscribers.
package digest

import (
	"context"
	"strings"
	"time"
)

// Category is a content category subscribers can follow.
type Category struct {
	ID   int64
	Name string
}

// Item is a published piece of content.
type Item struct {
	ID         int64
	Title      string
	Text       string
	CreatedAt  time.Time
	Categories []Category
}

// Group is the items of one category, in retrieval order.
type Group struct {
	Category Category
	Items    []Item
}

// Batch is the set of per-category groups of one digest run, ordered by the
// first appearance of each category.
type Batch []Group

// Message is one outgoing digest mail. Every recipient gets the same body.
type Message struct {
	Subject string
	HTML    string
	To      []string
}

// ContentSource lists content created in a time window.
type ContentSource interface {
	// ListCreatedBetween returns items with start <= CreatedAt < end.
	ListCreatedBetween(ctx context.Context, start, end time.Time) ([]Item, error)
}

// SubscriberResolver returns the email addresses subscribed to a category.
type SubscriberResolver interface {
	SubscribersOf(ctx context.Context, c Category) ([]string, error)
}

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// BuildBatch groups items by category. An item in several categories appears
// once in each of their groups; item order within a group follows the input.
func BuildBatch(items []Item) Batch {
	var batch Batch
	index := make(map[int64]int)
	for _, it := range items {
		seen := make(map[int64]bool, len(it.Categories))
		for _, c := range it.Categories {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true

			i, ok := index[c.ID]
			if !ok {
				i = len(batch)
				index[c.ID] = i
				batch = append(batch, Group{Category: c})
			}
			batch[i].Items = append(batch[i].Items, it)
		}
	}
	return batch
}

// Recipients trims and deduplicates addresses case-insensitively. The first
// spelling of an address wins and blanks are dropped.
func Recipients(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	seen := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		key := strings.ToLower(a)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}
