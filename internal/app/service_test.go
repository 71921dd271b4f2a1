package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"copydesk/api/internal/archive"
	"copydesk/api/internal/config"
	"copydesk/api/internal/notify"
	"copydesk/api/internal/sanitize"
	"copydesk/api/internal/store"
)

type fakeStore struct {
	createFn func(context.Context, store.ContentItem) (store.ContentItem, error)
	listFn   func(context.Context, *bool, store.SortKey) ([]store.ContentItem, error)
	getFn    func(context.Context, string) (store.ContentItem, error)
	updateFn func(context.Context, string, store.UpdateFields, *store.Version) (store.ContentItem, error)
}

func (f *fakeStore) Create(ctx context.Context, item store.ContentItem) (store.ContentItem, error) {
	if f.createFn != nil {
		return f.createFn(ctx, item)
	}
	item.ID = "content_00000000000000000000000000000001"
	return item, nil
}

func (f *fakeStore) List(ctx context.Context, published *bool, sortKey store.SortKey) ([]store.ContentItem, error) {
	if f.listFn != nil {
		return f.listFn(ctx, published, sortKey)
	}
	return nil, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (store.ContentItem, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return store.ContentItem{}, store.ErrNotFound
}

func (f *fakeStore) Update(ctx context.Context, id string, fields store.UpdateFields, appendVersion *store.Version) (store.ContentItem, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, fields, appendVersion)
	}
	return store.ContentItem{}, store.ErrNotFound
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeGateway struct {
	sendFn func(context.Context, string, any) (notify.Delivery, error)
	calls  int
}

func (f *fakeGateway) Send(ctx context.Context, url string, payload any) (notify.Delivery, error) {
	f.calls++
	if f.sendFn != nil {
		return f.sendFn(ctx, url, payload)
	}
	return notify.Delivery{Status: 200}, nil
}

type fakeCache struct {
	items       []store.ContentItem
	warm        bool
	invalidated int
	sets        int
}

func (f *fakeCache) Get(context.Context) ([]store.ContentItem, bool) { return f.items, f.warm }
func (f *fakeCache) Set(_ context.Context, items []store.ContentItem) error {
	f.sets++
	f.items = items
	f.warm = true
	return nil
}
func (f *fakeCache) Invalidate(context.Context) error {
	f.invalidated++
	f.warm = false
	return nil
}
func (f *fakeCache) Ping(context.Context) error { return nil }

type fakeArchive struct {
	recorded []archive.Snapshot
}

func (f *fakeArchive) RecordPublish(_ string, snap archive.Snapshot) (archive.CommitInfo, error) {
	f.recorded = append(f.recorded, snap)
	return archive.CommitInfo{Hash: "abc123", Message: "publish", When: snap.PublishedAt}, nil
}

func (f *fakeArchive) History(string, int) ([]archive.CommitInfo, error) { return nil, nil }

func newTestService(cfg config.Config, ds dataStore, gw webhookGateway) *Service {
	return New(cfg, ds, sanitize.New(sanitize.Default()), gw)
}

func TestCreateDraftDefaultsAndSanitizes(t *testing.T) {
	var created store.ContentItem
	ds := &fakeStore{
		createFn: func(_ context.Context, item store.ContentItem) (store.ContentItem, error) {
			item.ID = "content_00000000000000000000000000000001"
			created = item
			return item, nil
		},
	}
	svc := newTestService(config.Config{}, ds, &fakeGateway{})

	item, err := svc.CreateDraft(context.Background(), "  ", "<p>hi</p><script>alert(1)</script>")
	if err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}
	if item.Topic != "Untitled" {
		t.Errorf("topic = %q, want Untitled", item.Topic)
	}
	if created.Body != "<p>hi</p>" {
		t.Errorf("body = %q, script not stripped", created.Body)
	}
	if created.DateApproved == nil {
		t.Error("dateApproved not stamped")
	}
	if len(created.Versions) != 1 || created.Versions[0].Content != "<p>hi</p>" {
		t.Errorf("versions = %+v, want one seeded entry", created.Versions)
	}
}

func TestEditContentAppendsVersionAndInvalidatesCache(t *testing.T) {
	var gotFields store.UpdateFields
	var gotVersion *store.Version
	ds := &fakeStore{
		updateFn: func(_ context.Context, id string, fields store.UpdateFields, v *store.Version) (store.ContentItem, error) {
			gotFields = fields
			gotVersion = v
			return store.ContentItem{ID: id, Topic: *fields.Topic, Body: *fields.Body}, nil
		},
	}
	cache := &fakeCache{}
	svc := newTestService(config.Config{}, ds, &fakeGateway{})
	svc.UseCache(cache)

	_, err := svc.EditContent(context.Background(), "content_00000000000000000000000000000001", "Topic", "<p>v2</p>")
	if err != nil {
		t.Fatalf("EditContent() error = %v", err)
	}
	if gotFields.Topic == nil || *gotFields.Topic != "Topic" {
		t.Errorf("topic field = %v", gotFields.Topic)
	}
	if gotVersion == nil || gotVersion.Content != "<p>v2</p>" {
		t.Errorf("version = %+v, want appended entry", gotVersion)
	}
	if cache.invalidated != 1 {
		t.Errorf("cache invalidations = %d, want 1", cache.invalidated)
	}
}

func TestPublishStampsDateAndRecordsArchive(t *testing.T) {
	ds := &fakeStore{
		updateFn: func(_ context.Context, id string, fields store.UpdateFields, _ *store.Version) (store.ContentItem, error) {
			if fields.Published == nil || !*fields.Published {
				t.Error("published flag not set")
			}
			if fields.DatePublished == nil {
				t.Error("datePublished not stamped")
			}
			return store.ContentItem{
				ID:            id,
				Topic:         "Go Live",
				Body:          "<p>x</p>",
				Published:     true,
				DatePublished: fields.DatePublished,
			}, nil
		},
	}
	arch := &fakeArchive{}
	cache := &fakeCache{warm: true}
	svc := newTestService(config.Config{}, ds, &fakeGateway{})
	svc.UseArchive(arch)
	svc.UseCache(cache)

	item, err := svc.Publish(context.Background(), "content_00000000000000000000000000000001")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !item.Published {
		t.Error("item not published")
	}
	if len(arch.recorded) != 1 || arch.recorded[0].Topic != "Go Live" {
		t.Errorf("archive snapshots = %+v, want one", arch.recorded)
	}
	if cache.invalidated != 1 {
		t.Errorf("cache invalidations = %d, want 1", cache.invalidated)
	}
}

func TestPublishAndNotifyWithoutTarget(t *testing.T) {
	ds := &fakeStore{
		updateFn: func(_ context.Context, id string, fields store.UpdateFields, _ *store.Version) (store.ContentItem, error) {
			return store.ContentItem{ID: id, Published: true, DatePublished: fields.DatePublished}, nil
		},
	}
	gw := &fakeGateway{}
	svc := newTestService(config.Config{}, ds, gw)

	outcome, err := svc.PublishAndNotify(context.Background(), "content_00000000000000000000000000000001")
	if err != nil {
		t.Fatalf("PublishAndNotify() error = %v", err)
	}
	if !outcome.OK || !outcome.Published {
		t.Errorf("outcome = %+v, want ok and published", outcome)
	}
	if outcome.Forwarded {
		t.Error("forwarded true without a configured target")
	}
	if outcome.Reason != "not configured" {
		t.Errorf("reason = %q", outcome.Reason)
	}
	if gw.calls != 0 {
		t.Errorf("gateway called %d times, want 0", gw.calls)
	}
}

func TestPublishAndNotifyDeliverySucceeds(t *testing.T) {
	ds := &fakeStore{
		updateFn: func(_ context.Context, id string, fields store.UpdateFields, _ *store.Version) (store.ContentItem, error) {
			return store.ContentItem{ID: id, Topic: "T", Published: true, DatePublished: fields.DatePublished}, nil
		},
	}
	gw := &fakeGateway{
		sendFn: func(_ context.Context, url string, _ any) (notify.Delivery, error) {
			if url != "http://hooks.local/publish" {
				t.Errorf("url = %q", url)
			}
			return notify.Delivery{Status: 202}, nil
		},
	}
	svc := newTestService(config.Config{NotifyURL: "http://hooks.local/publish"}, ds, gw)

	outcome, err := svc.PublishAndNotify(context.Background(), "content_00000000000000000000000000000001")
	if err != nil {
		t.Fatalf("PublishAndNotify() error = %v", err)
	}
	if !outcome.Forwarded || outcome.ForwardStatus != 202 {
		t.Errorf("outcome = %+v, want forwarded with status 202", outcome)
	}
}

func TestPublishAndNotifyRejectedByReceiver(t *testing.T) {
	ds := &fakeStore{
		updateFn: func(_ context.Context, id string, fields store.UpdateFields, _ *store.Version) (store.ContentItem, error) {
			return store.ContentItem{ID: id, Published: true, DatePublished: fields.DatePublished}, nil
		},
	}
	gw := &fakeGateway{
		sendFn: func(context.Context, string, any) (notify.Delivery, error) {
			return notify.Delivery{Status: 500, Body: "workflow crashed"}, nil
		},
	}
	svc := newTestService(config.Config{NotifyURL: "http://hooks.local/publish"}, ds, gw)

	outcome, err := svc.PublishAndNotify(context.Background(), "content_00000000000000000000000000000001")
	if err != nil {
		t.Fatalf("PublishAndNotify() error = %v", err)
	}
	if !outcome.OK || !outcome.Published {
		t.Error("publish outcome must stay successful when the receiver rejects")
	}
	if outcome.Forwarded {
		t.Error("forwarded true for a 500 response")
	}
	if outcome.ForwardStatus != 500 || outcome.ForwardResponseBody != "workflow crashed" {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestPublishAndNotifyTransportError(t *testing.T) {
	ds := &fakeStore{
		updateFn: func(_ context.Context, id string, fields store.UpdateFields, _ *store.Version) (store.ContentItem, error) {
			return store.ContentItem{ID: id, Published: true, DatePublished: fields.DatePublished}, nil
		},
	}
	gw := &fakeGateway{
		sendFn: func(context.Context, string, any) (notify.Delivery, error) {
			return notify.Delivery{}, errors.New("connection refused")
		},
	}
	svc := newTestService(config.Config{NotifyURL: "http://hooks.local/publish"}, ds, gw)

	outcome, err := svc.PublishAndNotify(context.Background(), "content_00000000000000000000000000000001")
	if err != nil {
		t.Fatalf("PublishAndNotify() error = %v", err)
	}
	if !outcome.OK {
		t.Error("publish must succeed despite the transport failure")
	}
	if outcome.Forwarded {
		t.Error("forwarded true on transport failure")
	}
	if !strings.Contains(outcome.ForwardError, "connection refused") {
		t.Errorf("forwardError = %q", outcome.ForwardError)
	}
}

func TestPublishAndNotifyMissingItemSkipsGateway(t *testing.T) {
	ds := &fakeStore{
		updateFn: func(context.Context, string, store.UpdateFields, *store.Version) (store.ContentItem, error) {
			return store.ContentItem{}, store.ErrNotFound
		},
	}
	gw := &fakeGateway{}
	svc := newTestService(config.Config{NotifyURL: "http://hooks.local/publish"}, ds, gw)

	_, err := svc.PublishAndNotify(context.Background(), "content_00000000000000000000000000000001")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if gw.calls != 0 {
		t.Errorf("gateway called %d times for a missing item", gw.calls)
	}
}

func TestForwardRequiresURL(t *testing.T) {
	svc := newTestService(config.Config{}, &fakeStore{}, &fakeGateway{})

	_, err := svc.Forward(context.Background(), "content_00000000000000000000000000000001", "  ", nil)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "MISSING_URL" {
		t.Fatalf("expected MISSING_URL domain error, got %v", err)
	}
}

func TestForwardMergesExtraFields(t *testing.T) {
	approved := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	ds := &fakeStore{
		getFn: func(_ context.Context, id string) (store.ContentItem, error) {
			return store.ContentItem{ID: id, Topic: "T", Body: "<p>x</p>", DateApproved: &approved}, nil
		},
	}
	var sent map[string]any
	gw := &fakeGateway{
		sendFn: func(_ context.Context, _ string, payload any) (notify.Delivery, error) {
			sent = payload.(map[string]any)
			return notify.Delivery{Status: 200}, nil
		},
	}
	svc := newTestService(config.Config{}, ds, gw)

	outcome, err := svc.Forward(context.Background(), "content_00000000000000000000000000000001", "http://hooks.local/x", map[string]any{"source": "manual"})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if !outcome.Forwarded {
		t.Errorf("outcome = %+v, want forwarded", outcome)
	}
	if sent["topic"] != "T" || sent["source"] != "manual" {
		t.Errorf("payload = %+v, want item fields plus extras", sent)
	}
}

func TestListContentServesPublishedFromCache(t *testing.T) {
	listCalls := 0
	ds := &fakeStore{
		listFn: func(_ context.Context, published *bool, sortKey store.SortKey) ([]store.ContentItem, error) {
			listCalls++
			if published == nil || !*published {
				t.Error("expected published filter")
			}
			if sortKey != store.SortByPublished {
				t.Errorf("sortKey = %q, want %q", sortKey, store.SortByPublished)
			}
			return []store.ContentItem{{ID: "content_00000000000000000000000000000001"}}, nil
		},
	}
	cache := &fakeCache{}
	svc := newTestService(config.Config{}, ds, &fakeGateway{})
	svc.UseCache(cache)

	published := true
	if _, err := svc.ListContent(context.Background(), &published); err != nil {
		t.Fatalf("ListContent() error = %v", err)
	}
	if _, err := svc.ListContent(context.Background(), &published); err != nil {
		t.Fatalf("ListContent() error = %v", err)
	}
	if listCalls != 1 {
		t.Errorf("store list calls = %d, want 1 (second read from cache)", listCalls)
	}
}

func TestListContentDraftsBypassCache(t *testing.T) {
	ds := &fakeStore{
		listFn: func(_ context.Context, published *bool, sortKey store.SortKey) ([]store.ContentItem, error) {
			if published != nil {
				t.Error("expected no published filter")
			}
			if sortKey != store.SortByApproved {
				t.Errorf("sortKey = %q, want %q", sortKey, store.SortByApproved)
			}
			return nil, nil
		},
	}
	cache := &fakeCache{warm: true, items: []store.ContentItem{{ID: "content_cached"}}}
	svc := newTestService(config.Config{}, ds, &fakeGateway{})
	svc.UseCache(cache)

	if _, err := svc.ListContent(context.Background(), nil); err != nil {
		t.Fatalf("ListContent() error = %v", err)
	}
}
