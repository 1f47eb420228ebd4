package tableau

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"git.home.luguber.info/inful/tabbackup/internal/logfields"
)

// paginate turns a page fetcher into a lazy sequence. Pages are requested one at a
// time, only when the consumer has drained the previous one. The first error is
// yielded once and ends the sequence.
func paginate[T any](ctx context.Context, pageSize int, fetch func(page int) ([]T, int, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				yield(zero, contextError(ctx, err))
				return
			}
			items, total, err := fetch(page)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			if len(items) == 0 || page*pageSize >= total {
				return
			}
		}
	}
}

func pageQuery(values url.Values, pageSize, page int) string {
	values.Set("pageSize", strconv.Itoa(pageSize))
	values.Set("pageNumber", strconv.Itoa(page))
	return values.Encode()
}

// Sites lists every site visible to the signed-in user.
func (c *Client) Sites(ctx context.Context) iter.Seq2[Site, error] {
	return paginate(ctx, c.pageSize, func(page int) ([]Site, int, error) {
		if _, err := c.requireSession(); err != nil {
			return nil, 0, err
		}
		endpoint := "sites?" + pageQuery(url.Values{}, c.pageSize, page)
		var resp sitesResponse
		err := c.do(ctx, func() (*http.Request, error) {
			return c.newRequest(ctx, http.MethodGet, c.apiVersion, endpoint, nil)
		}, &resp)
		if err != nil {
			return nil, 0, err
		}
		slog.Debug("Fetched sites page", logfields.Page(page), slog.Int("count", len(resp.Sites.Site)))

		sites := make([]Site, 0, len(resp.Sites.Site))
		for _, s := range resp.Sites.Site {
			sites = append(sites, Site{ID: s.ID, Name: s.Name, ContentURL: s.ContentURL})
		}
		return sites, int(resp.Pagination.TotalAvailable), nil
	})
}

// Artifacts lists the artifacts of kind on the current site. filter is a REST
// filter expression such as "updatedAt:gte:2024-01-01T00:00:00Z"; empty lists all.
// The site is fixed when the sequence starts.
func (c *Client) Artifacts(ctx context.Context, kind Kind, filter string) iter.Seq2[Artifact, error] {
	siteID := c.Session().SiteID
	return paginate(ctx, c.pageSize, func(page int) ([]Artifact, int, error) {
		if _, err := c.requireSession(); err != nil {
			return nil, 0, err
		}
		q := url.Values{}
		if filter != "" {
			q.Set("filter", filter)
		}
		endpoint := "sites/" + url.PathEscape(siteID) + "/" + kind.Collection() + "?" + pageQuery(q, c.pageSize, page)

		var resp artifactsResponse
		err := c.do(ctx, func() (*http.Request, error) {
			return c.newRequest(ctx, http.MethodGet, c.apiVersion, endpoint, nil)
		}, &resp)
		if err != nil {
			return nil, 0, err
		}
		raw := resp.items(kind)
		slog.Debug("Fetched artifact page",
			logfields.ArtifactKind(kind.String()),
			logfields.Page(page),
			slog.Int("count", len(raw)))

		artifacts := make([]Artifact, 0, len(raw))
		for _, o := range raw {
			artifacts = append(artifacts, o.toArtifact(kind))
		}
		return artifacts, int(resp.Pagination.TotalAvailable), nil
	})
}
