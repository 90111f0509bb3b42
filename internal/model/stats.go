// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/olegiv/textpress-go/internal/cache"
	"github.com/olegiv/textpress-go/internal/store"
)

// Tag cloud font sizes, in percent.
const (
	TagCloudMinSize = 100
	TagCloudMaxSize = 200
)

// Archive summary granularities.
const (
	ArchiveYears  = "years"
	ArchiveMonths = "months"
	ArchiveDays   = "days"
)

// ErrInvalidArchiveQuery is returned for an unknown archive detail or a
// non-positive limit.
var ErrInvalidArchiveQuery = errors.New("invalid archive query")

// TagCloudEntry is one tag of the tag cloud.
type TagCloudEntry struct {
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
	Size  int    `json:"size"`
}

// ArchiveItem is one period of the archive summary.
type ArchiveItem struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// ArchiveSummary groups published posts by period, newest period first.
type ArchiveSummary struct {
	Detail string        `json:"detail"`
	Items  []ArchiveItem `json:"items"`
	Empty  bool          `json:"empty"`
}

// Stats answers the aggregate queries of the blog sidebar. Results are
// cached when a cache is configured.
type Stats struct {
	posts   *PostManager
	tags    *cache.TypedCache[[]TagCloudEntry]
	archive *cache.TypedCache[ArchiveSummary]
}

// NewStats creates the statistics queries. A nil cache disables caching.
func NewStats(m *Managers, c cache.Cache, ttl time.Duration) *Stats {
	s := &Stats{posts: m.Posts}
	if c != nil {
		s.tags = cache.NewTypedCache[[]TagCloudEntry](c, "tagcloud:", ttl)
		s.archive = cache.NewTypedCache[ArchiveSummary](c, "archive:", ttl)
	}
	return s
}

// Invalidate drops all cached statistics.
func (s *Stats) Invalidate(ctx context.Context) error {
	if s.tags == nil {
		return nil
	}
	return errors.Join(s.tags.Invalidate(ctx), s.archive.Invalidate(ctx))
}

// TagCloud returns up to limit of the most used tags (all tags when
// limit <= 0), sorted by name. Sizes run from TagCloudMinSize to
// TagCloudMaxSize, scaled by the number of posts.
func (s *Stats) TagCloud(ctx context.Context, limit int) ([]TagCloudEntry, error) {
	if limit < 0 {
		limit = 0
	}
	compute := func() (*[]TagCloudEntry, error) {
		entries, err := tagCloud(ctx, limit)
		return &entries, err
	}
	if s.tags == nil {
		v, err := compute()
		if err != nil {
			return nil, err
		}
		return *v, nil
	}
	v, err := s.tags.GetOrSet(ctx, fmt.Sprint(limit), compute)
	if err != nil {
		return nil, err
	}
	return *v, nil
}

func tagCloud(ctx context.Context, limit int) ([]TagCloudEntry, error) {
	sess, err := store.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := sess.Flush(ctx); err != nil {
		return nil, err
	}

	q := sess.DB(ctx).Table("tags").
		Select("tags.slug AS slug, tags.name AS name, COUNT(post_tags.post_id) AS count").
		Joins("JOIN post_tags ON post_tags.tag_id = tags.tag_id").
		Group("tags.tag_id, tags.slug, tags.name").
		Order("count DESC, tags.name")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []TagCloudEntry
	if err := q.Scan(&entries).Error; err != nil {
		return nil, fmt.Errorf("querying tag cloud: %w", err)
	}
	if len(entries) == 0 {
		return []TagCloudEntry{}, nil
	}

	lo, hi := entries[len(entries)-1].Count, entries[0].Count
	for i := range entries {
		entries[i].Size = TagCloudMinSize
		if hi > lo {
			entries[i].Size += int((entries[i].Count - lo) * (TagCloudMaxSize - TagCloudMinSize) / (hi - lo))
		}
	}
	slices.SortFunc(entries, func(a, b TagCloudEntry) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return entries, nil
}

// PostArchiveSummary returns the last limit years, months or days that have
// published posts, with the number of posts in each.
func (s *Stats) PostArchiveSummary(ctx context.Context, detail string, limit int) (*ArchiveSummary, error) {
	if detail != ArchiveYears && detail != ArchiveMonths && detail != ArchiveDays {
		return nil, fmt.Errorf("%w: detail %q", ErrInvalidArchiveQuery, detail)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidArchiveQuery, limit)
	}

	compute := func() (*ArchiveSummary, error) {
		return s.archiveSummary(ctx, detail, limit)
	}
	if s.archive == nil {
		return compute()
	}
	return s.archive.GetOrSet(ctx, fmt.Sprintf("%s:%d", detail, limit), compute)
}

func (s *Stats) archiveSummary(ctx context.Context, detail string, limit int) (*ArchiveSummary, error) {
	summary := &ArchiveSummary{Detail: detail, Items: []ArchiveItem{}}

	stop := errors.New("stop")
	err := s.posts.Published(ctx).OrderBy("pub_date DESC").Each(0, func(p *Post) error {
		period := truncate(p.PubDate.UTC(), detail)
		if n := len(summary.Items); n > 0 && summary.Items[n-1].Date.Equal(period) {
			summary.Items[n-1].Count++
			return nil
		}
		if len(summary.Items) == limit {
			return stop
		}
		summary.Items = append(summary.Items, ArchiveItem{Date: period, Count: 1})
		return nil
	})
	if err != nil && !errors.Is(err, stop) {
		return nil, fmt.Errorf("querying archive summary: %w", err)
	}

	summary.Empty = len(summary.Items) == 0
	return summary, nil
}

func truncate(t time.Time, detail string) time.Time {
	switch detail {
	case ArchiveYears:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	case ArchiveMonths:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}
