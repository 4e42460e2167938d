package catalog

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jrsteele09/go-dropship-gateway/proxy"
	"github.com/jrsteele09/go-dropship-gateway/retry"
	"github.com/rs/zerolog"
)

// Forwarder issues catalog reads; *proxy.Proxy satisfies it.
type Forwarder interface {
	Forward(ctx context.Context, req proxy.Request) (*proxy.Result, error)
}

// Source describes how to page through the upstream catalog.
type Source struct {
	// Path is listed first; Fallback is tried for any page where Path yields nothing.
	Path     string
	Fallback string
	// Query is merged into every primary request.
	Query    url.Values
	PageSize int
	// MaxPages and MaxItems bound the crawl; zero means unbounded.
	MaxPages int
	MaxItems int
	// Dedupe drops repeated product ids.
	Dedupe    bool
	PageDelay time.Duration
}

// PublicSource lists popular products via product/search, falling back to product/list.
func PublicSource(minOrders int, pageDelay time.Duration) Source {
	return Source{
		Path:      "product/search",
		Fallback:  "product/list",
		Query:     url.Values{"categoryId": {"all"}, "minOrderCount": {strconv.Itoa(minOrders)}},
		PageSize:  50,
		PageDelay: pageDelay,
	}
}

// ScoredSource collects a deduplicated pool of up to 150 products from product/list.
func ScoredSource(pageDelay time.Duration) Source {
	return Source{
		Path:      "product/list",
		PageSize:  50,
		MaxPages:  5,
		MaxItems:  150,
		Dedupe:    true,
		PageDelay: pageDelay,
	}
}

type crawler struct {
	source Source
	fwd    Forwarder
	sleep  retry.Sleeper
	logger zerolog.Logger
}

// fetch pages until a page comes back empty or short. A failed page
// contributes nothing.
func (c *crawler) fetch(ctx context.Context) []RawProduct {
	var (
		all  []RawProduct
		seen = map[string]bool{}
	)
	for page := 1; c.source.MaxPages == 0 || page <= c.source.MaxPages; page++ {
		list := c.page(ctx, c.source.Path, c.source.Query, page)
		if len(list) == 0 && c.source.Fallback != "" {
			list = c.page(ctx, c.source.Fallback, nil, page)
		}
		if len(list) == 0 {
			break
		}

		for _, p := range list {
			if c.source.Dedupe {
				id := p.ID()
				if id == "" || seen[id] {
					continue
				}
				seen[id] = true
			}
			all = append(all, p)
			if c.full(all) {
				return all
			}
		}

		if len(list) < c.source.PageSize {
			break
		}
		if err := c.sleep(ctx, c.source.PageDelay); err != nil {
			break
		}
	}
	return all
}

func (c *crawler) full(items []RawProduct) bool {
	return c.source.MaxItems > 0 && len(items) >= c.source.MaxItems
}

func (c *crawler) page(ctx context.Context, path string, extra url.Values, page int) []RawProduct {
	q := url.Values{}
	for k, v := range extra {
		q[k] = append([]string(nil), v...)
	}
	q.Set("pageNum", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(c.source.PageSize))

	res, err := c.fwd.Forward(ctx, proxy.Request{Method: http.MethodGet, Path: path, Query: q})
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Int("page", page).Msg("catalog page failed")
		return nil
	}
	if !res.Succeeded() {
		c.logger.Warn().Str("path", path).Int("page", page).Int("status", res.Status).Str("message", res.Envelope.Message).Msg("catalog page rejected")
		return nil
	}
	var lp listPage
	if err := res.DecodeData(&lp); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Int("page", page).Msg("catalog page unreadable")
		return nil
	}
	return lp.List
}
