package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"copydesk/api/internal/archive"
	"copydesk/api/internal/config"
	"copydesk/api/internal/export"
	"copydesk/api/internal/media"
	"copydesk/api/internal/notify"
	"copydesk/api/internal/sanitize"
	"copydesk/api/internal/search"
	"copydesk/api/internal/store"
)

const defaultTopic = "Untitled"

type dataStore interface {
	Create(ctx context.Context, item store.ContentItem) (store.ContentItem, error)
	List(ctx context.Context, published *bool, sortKey store.SortKey) ([]store.ContentItem, error)
	Get(ctx context.Context, id string) (store.ContentItem, error)
	Update(ctx context.Context, id string, fields store.UpdateFields, appendVersion *store.Version) (store.ContentItem, error)
	Ping(ctx context.Context) error
}

type webhookGateway interface {
	Send(ctx context.Context, url string, payload any) (notify.Delivery, error)
}

type publishedCache interface {
	Get(ctx context.Context) ([]store.ContentItem, bool)
	Set(ctx context.Context, items []store.ContentItem) error
	Invalidate(ctx context.Context) error
	Ping(ctx context.Context) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexContent(record search.ContentRecord)
	IndexContents(records []search.ContentRecord)
}

type publishArchive interface {
	RecordPublish(itemID string, snap archive.Snapshot) (archive.CommitInfo, error)
	History(itemID string, limit int) ([]archive.CommitInfo, error)
}

// Service owns the content lifecycle: draft creation, sanitized edits with
// version history, the one-way publish transition, and the best-effort
// side effects hanging off publish (webhook, search index, git archive).
type Service struct {
	cfg       config.Config
	store     dataStore
	sanitizer *sanitize.Sanitizer
	gateway   webhookGateway
	export    *export.Service

	// optional collaborators, nil when not configured
	cache   publishedCache
	search  searchIndex
	archive publishArchive
	media   *media.Service
}

func New(cfg config.Config, dataStore dataStore, sanitizer *sanitize.Sanitizer, gateway webhookGateway) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sanitizer: sanitizer,
		gateway:   gateway,
		export:    export.NewService(),
	}
}

func (s *Service) UseCache(cache publishedCache)     { s.cache = cache }
func (s *Service) UseSearch(index searchIndex)       { s.search = index }
func (s *Service) UseArchive(archive publishArchive) { s.archive = archive }
func (s *Service) UseMedia(mediaSvc *media.Service)  { s.media = mediaSvc }

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CachePing(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

func (s *Service) Media() *media.Service {
	return s.media
}

// Bootstrap logs the collection state at startup and warms the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	items, err := s.store.List(ctx, nil, store.SortByApproved)
	if err != nil {
		return fmt.Errorf("bootstrap list: %w", err)
	}

	publishedCount := 0
	for _, item := range items {
		if item.Published {
			publishedCount++
		}
	}
	log.Printf("bootstrap: %d content item(s), %d published, %d draft", len(items), publishedCount, len(items)-publishedCount)

	if s.search != nil {
		records := make([]search.ContentRecord, 0, len(items))
		for _, item := range items {
			records = append(records, searchRecord(item))
		}
		s.search.IndexContents(records)
	}
	return nil
}

// ListContent returns a point-in-time snapshot of the collection. The
// published subset is ordered by publish date, everything else by approval
// date. The published list is served from cache when warm.
func (s *Service) ListContent(ctx context.Context, published *bool) ([]store.ContentItem, error) {
	wantPublished := published != nil && *published
	if wantPublished && s.cache != nil {
		if items, ok := s.cache.Get(ctx); ok {
			return items, nil
		}
	}

	sortKey := store.SortByApproved
	if wantPublished {
		sortKey = store.SortByPublished
	}
	items, err := s.store.List(ctx, published, sortKey)
	if err != nil {
		return nil, err
	}

	if wantPublished && s.cache != nil {
		if err := s.cache.Set(ctx, items); err != nil {
			log.Printf("cache: set published list: %v", err)
		}
	}
	return items, nil
}

func (s *Service) GetContent(ctx context.Context, id string) (store.ContentItem, error) {
	return s.store.Get(ctx, id)
}

// CreateDraft sanitizes the initial body (an empty default is fine), stamps
// dateApproved, and seeds the version history with a single entry.
func (s *Service) CreateDraft(ctx context.Context, topic, rawHTML string) (store.ContentItem, error) {
	if strings.TrimSpace(topic) == "" {
		topic = defaultTopic
	}
	body := s.sanitizer.Clean(rawHTML)
	now := time.Now().UTC()

	created, err := s.store.Create(ctx, store.ContentItem{
		Topic:        topic,
		Body:         body,
		Published:    false,
		DateApproved: &now,
		Versions:     []store.Version{{Content: body, Date: now}},
	})
	if err != nil {
		return store.ContentItem{}, err
	}

	if s.search != nil {
		s.search.IndexContent(searchRecord(created))
	}
	return created, nil
}

// EditContent sanitizes the incoming body, replaces topic and body, and
// appends exactly one version entry - all in a single store write.
func (s *Service) EditContent(ctx context.Context, id, topic, rawHTML string) (store.ContentItem, error) {
	body := s.sanitizer.Clean(rawHTML)
	now := time.Now().UTC()

	updated, err := s.store.Update(ctx, id,
		store.UpdateFields{Topic: &topic, Body: &body, UpdatedAt: now},
		&store.Version{Content: body, Date: now},
	)
	if err != nil {
		return store.ContentItem{}, err
	}

	s.invalidatePublishedCache(ctx)
	if s.search != nil {
		s.search.IndexContent(searchRecord(updated))
	}
	return updated, nil
}

// Publish flips the item to published and stamps datePublished. There is no
// guard against re-publishing: the transition re-runs and re-stamps, which
// is accepted idempotent behavior. Side effects are best-effort.
func (s *Service) Publish(ctx context.Context, id string) (store.ContentItem, error) {
	now := time.Now().UTC()
	published := true

	updated, err := s.store.Update(ctx, id,
		store.UpdateFields{Published: &published, DatePublished: &now, UpdatedAt: now},
		nil,
	)
	if err != nil {
		return store.ContentItem{}, err
	}

	s.invalidatePublishedCache(ctx)
	if s.search != nil {
		s.search.IndexContent(searchRecord(updated))
	}
	if s.archive != nil {
		if _, err := s.archive.RecordPublish(updated.ID, archive.Snapshot{
			Topic:       updated.Topic,
			Body:        updated.Body,
			PublishedAt: now,
		}); err != nil {
			log.Printf("archive: record publish %s: %v", updated.ID, err)
		}
	}

	log.Printf("published content %s (%s)", updated.ID, updated.Topic)
	return updated, nil
}

// PublishOutcome is the envelope for publish-and-notify and manual forwards.
// ok reflects only the durable state change; forwarding failures are
// reported in the forward* fields, never as errors.
type PublishOutcome struct {
	OK                  bool               `json:"ok"`
	Published           bool               `json:"published"`
	Item                *store.ContentItem `json:"item,omitempty"`
	Forwarded           bool               `json:"forwarded"`
	ForwardStatus       int                `json:"forwardStatus,omitempty"`
	ForwardResponseBody string             `json:"forwardResponseBody,omitempty"`
	ForwardError        string             `json:"forwardError,omitempty"`
	Reason              string             `json:"reason,omitempty"`
}

// PublishAndNotify publishes the item, then forwards it to the configured
// webhook. Invalid ids and missing items fail before any notification is
// attempted; once the publish has committed, every notification outcome is
// reported as success.
func (s *Service) PublishAndNotify(ctx context.Context, id string) (PublishOutcome, error) {
	item, err := s.Publish(ctx, id)
	if err != nil {
		return PublishOutcome{}, err
	}

	outcome := PublishOutcome{OK: true, Published: true, Item: &item}

	if strings.TrimSpace(s.cfg.NotifyURL) == "" {
		outcome.Reason = "not configured"
		return outcome, nil
	}

	s.forwardPayload(ctx, s.cfg.NotifyURL, item, &outcome)
	return outcome, nil
}

// Forward delivers one item to a caller-supplied webhook URL, merging any
// extra payload fields on top of the item's own. The item is not published
// or otherwise modified.
func (s *Service) Forward(ctx context.Context, id, url string, extra map[string]any) (PublishOutcome, error) {
	if strings.TrimSpace(url) == "" {
		return PublishOutcome{}, domainError(http.StatusBadRequest, "MISSING_URL", "url is required", nil)
	}

	item, err := s.store.Get(ctx, id)
	if err != nil {
		return PublishOutcome{}, err
	}

	payload, err := mergePayload(item, extra)
	if err != nil {
		return PublishOutcome{}, err
	}

	outcome := PublishOutcome{OK: true, Published: item.Published, Item: &item}
	s.forwardPayload(ctx, url, payload, &outcome)
	return outcome, nil
}

// ArchiveHistory lists the git publish snapshots for an existing item.
func (s *Service) ArchiveHistory(ctx context.Context, id string) ([]archive.CommitInfo, error) {
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Publish archive not configured", nil)
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.archive.History(id, 0)
}

// SearchContent queries the search backends. Without a search service the
// endpoint degrades to an empty result set rather than failing.
func (s *Service) SearchContent(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// ExportContent renders one item as a downloadable file.
func (s *Service) ExportContent(ctx context.Context, id string, format export.Format) (*export.Result, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.export.Export(export.Page{
		Topic:         item.Topic,
		BodyHTML:      item.Body,
		Published:     item.Published,
		DatePublished: item.DatePublished,
		UpdatedAt:     item.UpdatedAt,
	}, format)
}

func (s *Service) forwardPayload(ctx context.Context, url string, payload any, outcome *PublishOutcome) {
	delivery, err := s.gateway.Send(ctx, url, payload)
	if err != nil {
		outcome.ForwardError = err.Error()
		log.Printf("notify: forward to %s failed: %v", url, err)
		return
	}
	outcome.ForwardStatus = delivery.Status
	if delivery.Success() {
		outcome.Forwarded = true
		return
	}
	outcome.ForwardResponseBody = delivery.Body
	log.Printf("notify: forward to %s returned status %d", url, delivery.Status)
}

func (s *Service) invalidatePublishedCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Printf("cache: invalidate published list: %v", err)
	}
}

func searchRecord(item store.ContentItem) search.ContentRecord {
	return search.ContentRecord{
		ID:        item.ID,
		Topic:     item.Topic,
		Body:      sanitize.Text(item.Body),
		Published: item.Published,
	}
}

func mergePayload(item store.ContentItem, extra map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	for key, value := range extra {
		payload[key] = value
	}
	return payload, nil
}
