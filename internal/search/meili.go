package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	meili "github.com/meilisearch/meilisearch-go"
	"golang.org/x/sync/errgroup"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/filter"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/forum"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/query"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/rank"
)

const (
	idxThreads = "forum_threads"

	// maxTotalHits bounds the exact totals Meilisearch reports.
	maxTotalHits = 100000

	indexBatchSize = 1000
)

// Hydrator reloads threads from the primary store so mirrored hits carry current
// counters.
type Hydrator interface {
	ThreadsByIDs(ctx context.Context, ids []int64) ([]forum.Thread, error)
}

// Meili mirrors the thread set into a Meilisearch index and serves the structural
// subset of queries: no keyword plan and a direct-field sort. Everything else is
// rejected with ErrNotExpressible.
type Meili struct {
	client   meili.ServiceManager
	hydrator Hydrator
	log      logr.Logger
	healthy  atomic.Bool
	done     chan struct{}
}

// NewMeili creates a Meilisearch client and configures the thread index. An
// unreachable server is not an error: the backend reports unhealthy and keeps
// probing in the background.
func NewMeili(url, apiKey string, hydrator Hydrator, log logr.Logger) *Meili {
	m := newMeili(meili.New(url, meili.WithAPIKey(apiKey)), hydrator, log)
	if _, err := m.client.Health(); err != nil {
		m.log.Error(err, "meilisearch unavailable", "url", url)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}
	go m.healthLoop()
	return m
}

func newMeili(client meili.ServiceManager, hydrator Hydrator, log logr.Logger) *Meili {
	return &Meili{client: client, hydrator: hydrator, log: log, done: make(chan struct{})}
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxThreads,
		PrimaryKey: "threadId",
	}); err != nil {
		m.log.V(1).Info("create index (may already exist)", "index", idxThreads, "error", err.Error())
	}

	index := m.client.Index(idxThreads)
	filterable := []interface{}{
		"threadId", "channelId", "authorId", "tagIds", "createdAt", "lastActiveAt",
		"reactionCount", "replyCount", "notFoundCount",
	}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Error(err, "update filterable attributes", "index", idxThreads)
	}
	sortable := []string{"threadId", "createdAt", "lastActiveAt", "reactionCount", "replyCount"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		m.log.Error(err, "update sortable attributes", "index", idxThreads)
	}
	searchable := []string{"title", "excerpt"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Error(err, "update searchable attributes", "index", idxThreads)
	}
	if _, err := index.UpdatePagination(&meili.Pagination{MaxTotalHits: maxTotalHits}); err != nil {
		m.log.Error(err, "update pagination", "index", idxThreads)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Name() string { return "meilisearch" }

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Expressible reports whether f and sort can be evaluated by Meilisearch.
// Keyword plans need token proximity and comprehensive sorting needs the current
// ranking snapshot; neither exists in the mirror.
func Expressible(f *filter.Filter, sort Sort) bool {
	return f.Keywords == nil && sort.Method != query.SortComprehensive
}

// Search counts matches and fetches the page in one multi-search call.
func (m *Meili) Search(ctx context.Context, f *filter.Filter, sort Sort, _ *rank.Params, offset, limit int) (Page, error) {
	if !Expressible(f, sort) {
		return Page{}, ErrNotExpressible
	}
	if !m.healthy.Load() {
		return Page{}, fmt.Errorf("meilisearch unhealthy")
	}
	sortKey, err := meiliSort(sort)
	if err != nil {
		return Page{}, err
	}

	filters := CompileFilter(f)
	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{
			{IndexUID: idxThreads, Filter: filters, HitsPerPage: 1, Page: 1, AttributesToRetrieve: []string{"threadId"}},
			{IndexUID: idxThreads, Filter: filters, Sort: sortKey, Offset: int64(max(offset, 0)), Limit: int64(max(limit, 1))},
		},
	})
	if err != nil {
		m.healthy.Store(false)
		return Page{}, fmt.Errorf("meilisearch multi-search: %w", err)
	}
	if len(resp.Results) != 2 {
		return Page{}, fmt.Errorf("meilisearch multi-search: expected 2 results, got %d", len(resp.Results))
	}

	page := emptyPage(offset, limit)
	page.Total = int(resp.Results[0].TotalHits)
	for _, hit := range resp.Results[1].Hits {
		doc, err := decodeThread(hit)
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, rank.Ranked{Thread: doc.thread()})
	}
	if m.hydrator == nil {
		return page, nil
	}
	return hydrate(ctx, m.hydrator, page)
}

// hydrate replaces mirrored hits with their current rows. Hits that were
// soft-deleted or removed since the last reindex are dropped from the page and
// the total.
func hydrate(ctx context.Context, h Hydrator, page Page) (Page, error) {
	if len(page.Items) == 0 {
		return page, nil
	}
	fresh, err := h.ThreadsByIDs(ctx, page.IDs())
	if err != nil {
		return Page{}, fmt.Errorf("hydrate meilisearch hits: %w", err)
	}
	byID := make(map[int64]forum.Thread, len(fresh))
	for _, t := range fresh {
		byID[t.ID] = t
	}
	items := make([]rank.Ranked, 0, len(page.Items))
	for _, item := range page.Items {
		t, ok := byID[item.ID]
		if !ok || t.NotFoundCount > 0 {
			continue
		}
		t.TitleTokens, t.ExcerptTokens = nil, nil
		items = append(items, rank.Ranked{Thread: t})
	}
	page.Total = max(page.Total-(len(page.Items)-len(items)), 0)
	page.Items = items
	return page, nil
}

func meiliSort(sort Sort) ([]string, error) {
	var attr string
	switch sort.Method {
	case query.SortCreatedAt:
		attr = "createdAt"
	case query.SortLastActiveAt:
		attr = "lastActiveAt"
	case query.SortReactionCount:
		attr = "reactionCount"
	case query.SortReplyCount:
		attr = "replyCount"
	default:
		return nil, ErrNotExpressible
	}
	return []string{attr + ":" + string(sort.Order), "threadId:asc"}, nil
}

// CompileFilter renders f as Meilisearch filter expressions, implicitly ANDed.
// The keyword plan is not rendered; callers check Expressible first.
func CompileFilter(f *filter.Filter) []string {
	if f.Impossible {
		return []string{"threadId IN []"}
	}
	out := []string{"notFoundCount = 0"}
	in := func(attr string, ids []int64) string {
		return fmt.Sprintf("%s IN [%s]", attr, joinIDs(ids))
	}

	if len(f.ChannelIDs) > 0 {
		out = append(out, in("channelId", f.ChannelIDs))
	}
	for _, group := range f.TagGroups {
		out = append(out, in("tagIds", group))
	}
	if len(f.ExcludeTagIDs) > 0 {
		out = append(out, "NOT "+in("tagIds", f.ExcludeTagIDs))
	}
	if f.IncludeAuthors != nil {
		out = append(out, in("authorId", f.IncludeAuthors))
	}
	if len(f.ExcludeAuthors) > 0 {
		out = append(out, "NOT "+in("authorId", f.ExcludeAuthors))
	}
	if f.ThreadIDs != nil {
		out = append(out, in("threadId", f.ThreadIDs))
	}
	if len(f.ExcludeThreadIDs) > 0 {
		out = append(out, "NOT "+in("threadId", f.ExcludeThreadIDs))
	}
	if f.CreatedAfter != nil {
		out = append(out, fmt.Sprintf("createdAt >= %d", f.CreatedAfter.UnixMilli()))
	}
	if f.CreatedBefore != nil {
		out = append(out, fmt.Sprintf("createdAt <= %d", f.CreatedBefore.UnixMilli()))
	}
	if f.ActiveAfter != nil {
		out = append(out, fmt.Sprintf("lastActiveAt >= %d", f.ActiveAfter.UnixMilli()))
	}
	if f.ActiveBefore != nil {
		out = append(out, fmt.Sprintf("lastActiveAt <= %d", f.ActiveBefore.UnixMilli()))
	}
	for _, r := range []struct {
		attr string
		rng  query.Range
	}{{"reactionCount", f.Reactions}, {"replyCount", f.Replies}} {
		if r.rng.Valid() {
			out = append(out,
				fmt.Sprintf("%s %s %d", r.attr, r.rng.MinOp, *r.rng.Min),
				fmt.Sprintf("%s %s %d", r.attr, r.rng.MaxOp, *r.rng.Max),
			)
		}
	}
	return out
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

// threadDoc is the document shape stored in the index. Times are Unix
// milliseconds so they can be filtered and sorted numerically.
type threadDoc struct {
	ThreadID      int64       `json:"threadId"`
	ChannelID     int64       `json:"channelId"`
	Title         string      `json:"title"`
	AuthorID      int64       `json:"authorId"`
	CreatedAt     int64       `json:"createdAt"`
	LastActiveAt  int64       `json:"lastActiveAt"`
	ReactionCount int64       `json:"reactionCount"`
	ReplyCount    int64       `json:"replyCount"`
	DisplayCount  int64       `json:"displayCount"`
	Excerpt       string      `json:"excerpt"`
	ThumbnailURL  string      `json:"thumbnailUrl,omitempty"`
	NotFoundCount int         `json:"notFoundCount"`
	TagIDs        []int64     `json:"tagIds"`
	Tags          []forum.Tag `json:"tags"`
}

func newThreadDoc(t forum.Thread) threadDoc {
	doc := threadDoc{
		ThreadID:      t.ID,
		ChannelID:     t.ChannelID,
		Title:         t.Title,
		AuthorID:      t.AuthorID,
		CreatedAt:     t.CreatedAt.UnixMilli(),
		LastActiveAt:  t.LastActiveAt.UnixMilli(),
		ReactionCount: t.ReactionCount,
		ReplyCount:    t.ReplyCount,
		DisplayCount:  t.DisplayCount,
		Excerpt:       t.Excerpt,
		ThumbnailURL:  t.ThumbnailURL,
		NotFoundCount: t.NotFoundCount,
		TagIDs:        make([]int64, 0, len(t.Tags)),
		Tags:          t.Tags,
	}
	for _, tag := range t.Tags {
		doc.TagIDs = append(doc.TagIDs, tag.ID)
	}
	if doc.Tags == nil {
		doc.Tags = []forum.Tag{}
	}
	return doc
}

func (d threadDoc) thread() forum.Thread {
	return forum.Thread{
		ID:            d.ThreadID,
		ChannelID:     d.ChannelID,
		Title:         d.Title,
		AuthorID:      d.AuthorID,
		CreatedAt:     time.UnixMilli(d.CreatedAt).UTC(),
		LastActiveAt:  time.UnixMilli(d.LastActiveAt).UTC(),
		ReactionCount: d.ReactionCount,
		ReplyCount:    d.ReplyCount,
		DisplayCount:  d.DisplayCount,
		Excerpt:       d.Excerpt,
		ThumbnailURL:  d.ThumbnailURL,
		NotFoundCount: d.NotFoundCount,
		Tags:          d.Tags,
	}
}

func decodeThread(hit meili.Hit) (threadDoc, error) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return threadDoc{}, fmt.Errorf("re-encode hit: %w", err)
	}
	var doc threadDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return threadDoc{}, fmt.Errorf("decode hit: %w", err)
	}
	return doc, nil
}

// IndexThreads bulk-indexes threads in batches, several batches at a time.
func (m *Meili) IndexThreads(ctx context.Context, threads []forum.Thread) error {
	if len(threads) == 0 {
		return nil
	}
	index := m.client.Index(idxThreads)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(threads); start += indexBatchSize {
		batch := threads[start:min(start+indexBatchSize, len(threads))]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			docs := make([]threadDoc, len(batch))
			for i, t := range batch {
				docs[i] = newThreadDoc(t)
			}
			if _, err := index.AddDocuments(docs, nil); err != nil {
				return fmt.Errorf("index threads %d..%d: %w", batch[0].ID, batch[len(batch)-1].ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// DeleteThread removes a thread from the search index.
func (m *Meili) DeleteThread(id int64) error {
	_, err := m.client.Index(idxThreads).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}
