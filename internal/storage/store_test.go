package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/storage"
)

func newTestStore(t *testing.T, path string, opts ...storage.Option) *storage.Store {
	t.Helper()
	s, err := storage.Open(path, zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return s
}

func article(id int, title string, snippetIDs ...string) storage.ArticleSnippets {
	as := storage.ArticleSnippets{
		Article: storage.Article{PageID: id, URL: "https://en.wikipedia.org/wiki/" + title, Title: title},
	}
	for _, sid := range snippetIDs {
		as.Snippets = append(as.Snippets, storage.Snippet{ID: sid, HTML: "<div>" + sid + "</div>"})
	}
	return as
}

func seed(t *testing.T, s *storage.Store, batch ...storage.ArticleSnippets) {
	t.Helper()
	if _, err := s.SaveArticles(context.Background(), batch); err != nil {
		t.Fatalf("Failed to save articles: %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "nested", "test.db"))
	defer s.Close()

	count, err := s.SnippetCount(ctx)
	if err != nil {
		t.Fatalf("Failed to count snippets: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 snippets, got %d", count)
	}

	if _, err := s.GetMetadata(ctx, "lang_code"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := s.SetMetadata(ctx, "lang_code", "en"); err != nil {
		t.Fatalf("Failed to set metadata: %v", err)
	}
	if v, err := s.GetMetadata(ctx, "lang_code"); err != nil || v != "en" {
		t.Errorf("Expected en, got %q (%v)", v, err)
	}
}

func TestOpenTwiceKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s := newTestStore(t, path)
	seed(t, s, article(1, "A", "a1"))
	s.Close()

	s = newTestStore(t, path)
	defer s.Close()
	n, err := s.ArticleCount(context.Background())
	if err != nil || n != 1 {
		t.Errorf("Expected 1 article after reopening, got %d (%v)", n, err)
	}
}

func TestSaveArticlesDropsTruncated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "test.db"), storage.WithMaxSnippetLength(20))
	defer s.Close()

	long := storage.Snippet{ID: "long", HTML: "<div>this snippet is far too long</div>"}
	short := storage.Snippet{ID: "short", HTML: "<div>ok</div>", Section: "History"}
	onlyLong := storage.Snippet{ID: "long2", HTML: "<div>another snippet that is too long</div>"}

	res, err := s.SaveArticles(ctx, []storage.ArticleSnippets{
		{Article: storage.Article{PageID: 1, URL: "u1", Title: "One"}, Snippets: []storage.Snippet{long, short}},
		{Article: storage.Article{PageID: 2, URL: "u2", Title: "Two"}, Snippets: []storage.Snippet{onlyLong}},
		{Article: storage.Article{PageID: 3, URL: "u3", Title: "Empty"}},
	})
	if err != nil {
		t.Fatalf("Failed to save articles: %v", err)
	}

	want := storage.SaveResult{Articles: 1, Snippets: 1, Truncated: 2}
	if res != want {
		t.Errorf("Expected %+v, got %+v", want, res)
	}

	ids, err := s.ArticleIDs(ctx)
	if err != nil {
		t.Fatalf("Failed to list articles: %v", err)
	}
	if !reflect.DeepEqual(ids, []int{1}) {
		t.Errorf("Expected only article 1 to remain, got %v", ids)
	}

	got, err := s.Snippet(ctx, "short")
	if err != nil {
		t.Fatalf("Failed to get snippet: %v", err)
	}
	if got.HTML != short.HTML || got.Section != "History" || got.Article.Title != "One" {
		t.Errorf("Unexpected snippet %+v", got)
	}
	if !got.OldestTemplateDate.IsZero() {
		t.Errorf("Expected no template date, got %v", got.OldestTemplateDate)
	}
	if _, err := s.Snippet(ctx, "long"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected truncated snippet to be gone, got %v", err)
	}
}

func TestSnippetTemplateDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "test.db"))
	defer s.Close()

	date := time.Date(2009, time.July, 1, 0, 0, 0, 0, time.UTC)
	seed(t, s, storage.ArticleSnippets{
		Article:  storage.Article{PageID: 7, URL: "u", Title: "Dated"},
		Snippets: []storage.Snippet{{ID: "d", HTML: "<p>x</p>", OldestTemplateDate: date}},
	})

	got, err := s.Snippet(ctx, "d")
	if err != nil {
		t.Fatalf("Failed to get snippet: %v", err)
	}
	if !got.OldestTemplateDate.Equal(date) {
		t.Errorf("Expected %v, got %v", date, got.OldestTemplateDate)
	}
}

func TestRing(t *testing.T) {
	got := storage.Ring([]string{"a", "b", "c"})
	want := [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if got := storage.Ring([]string{"a"}); !reflect.DeepEqual(got, [][2]string{{"a", "a"}}) {
		t.Errorf("Expected a self loop, got %v", got)
	}
	if got := storage.Ring(nil); len(got) != 0 {
		t.Errorf("Expected no pairs, got %v", got)
	}
}

func TestReplaceCategories(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "test.db"))
	defer s.Close()

	seed(t, s,
		article(1, "Charlie", "c1"),
		article(2, "Alpha", "a1", "a2"),
		article(3, "Bravo", "b1"),
	)

	cats := []storage.Category{
		{ID: "cat1", Title: "Physics", ArticleIDs: []int{1, 2, 3, 99}},
		{ID: "cat2", Title: "Old physics", ArticleIDs: []int{1, 3}},
	}
	for i := 0; i < 2; i++ {
		if err := s.ReplaceCategories(ctx, cats); err != nil {
			t.Fatalf("Failed to replace categories: %v", err)
		}
	}

	g := storage.CategoryGroup("cat1")
	order := []string{"a1", "a2", "b1", "c1"}
	for i, id := range order {
		next, err := s.NextSnippetID(ctx, id, g)
		if err != nil {
			t.Fatalf("Failed to get next of %s: %v", id, err)
		}
		if want := order[(i+1)%len(order)]; next != want {
			t.Errorf("Expected next(%s) = %s, got %s", id, want, next)
		}
	}

	ring, err := s.RingIDs(ctx, g)
	if err != nil {
		t.Fatalf("Failed to walk ring: %v", err)
	}
	if !reflect.DeepEqual(ring, order) {
		t.Errorf("Expected ring %v, got %v", order, ring)
	}

	if _, err := s.NextSnippetID(ctx, "a1", storage.CategoryGroup("cat2")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a snippet outside the category, got %v", err)
	}

	found, err := s.SearchCategories(ctx, "PHYSICS", 10)
	if err != nil {
		t.Fatalf("Failed to search categories: %v", err)
	}
	want := []storage.CategoryCount{
		{ID: "cat1", Title: "Physics", Articles: 3},
		{ID: "cat2", Title: "Old physics", Articles: 2},
	}
	if !reflect.DeepEqual(found, want) {
		t.Errorf("Expected %v, got %v", want, found)
	}

	if title, err := s.Category(ctx, "cat2"); err != nil || title != "Old physics" {
		t.Errorf("Expected Old physics, got %q (%v)", title, err)
	}

	if err := s.ReplaceCategories(ctx, cats[1:]); err != nil {
		t.Fatalf("Failed to replace categories: %v", err)
	}
	if _, err := s.Category(ctx, "cat1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected cat1 to be removed, got %v", err)
	}
	if _, err := s.NextSnippetID(ctx, "a1", g); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected cat1 ring to be removed, got %v", err)
	}
}

func TestSaveIntersection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "test.db"))
	defer s.Close()

	seed(t, s, article(1, "B", "b1"), article(2, "A", "a1"))

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.SaveIntersection(ctx, "inter", []int{1, 2, 3}, first); err != nil {
		t.Fatalf("Failed to save intersection: %v", err)
	}
	later := first.Add(48 * time.Hour)
	if err := s.SaveIntersection(ctx, "inter", []int{1, 2}, later); err != nil {
		t.Fatalf("Failed to save intersection: %v", err)
	}

	exp, err := s.Intersection(ctx, "inter")
	if err != nil {
		t.Fatalf("Failed to get intersection: %v", err)
	}
	if !exp.Equal(later) {
		t.Errorf("Expected expiration %v, got %v", later, exp)
	}

	members, err := s.IntersectionArticleIDs(ctx, "inter")
	if err != nil || !reflect.DeepEqual(members, []int{1, 2}) {
		t.Errorf("Expected members [1 2], got %v (%v)", members, err)
	}

	g := storage.IntersectionGroup("inter")
	if next, err := s.NextSnippetID(ctx, "a1", g); err != nil || next != "b1" {
		t.Errorf("Expected b1 after a1, got %q (%v)", next, err)
	}
	if next, err := s.NextSnippetID(ctx, "b1", g); err != nil || next != "a1" {
		t.Errorf("Expected a1 after b1, got %q (%v)", next, err)
	}
	if id, err := s.RandomSnippetID(ctx, g); err != nil || (id != "a1" && id != "b1") {
		t.Errorf("Expected a member of the intersection, got %q (%v)", id, err)
	}
}

func TestSweepIntersectionsFromPrevious(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	prev := newTestStore(t, filepath.Join(dir, "live.db"))
	seed(t, prev, article(1, "A", "a1"), article(2, "B", "b1"), article(3, "C", "c1"))
	for _, in := range []struct {
		id  string
		ids []int
		exp time.Time
	}{
		{"live", []int{1, 2}, now.Add(24 * time.Hour)},
		{"expired", []int{1}, now.Add(-24 * time.Hour)},
		{"gone", []int{3}, now.Add(24 * time.Hour)},
	} {
		if err := prev.SaveIntersection(ctx, in.id, in.ids, in.exp); err != nil {
			t.Fatalf("Failed to save intersection: %v", err)
		}
	}
	prev.Close()

	s := newTestStore(t, filepath.Join(dir, "scratch.db"))
	defer s.Close()
	seed(t, s, article(1, "A", "a1"), article(2, "B", "b1"))

	res, err := s.SweepIntersections(ctx, filepath.Join(dir, "live.db"), now)
	if err != nil {
		t.Fatalf("Failed to sweep: %v", err)
	}
	if want := (storage.SweepResult{Imported: 2, Kept: 1}); res != want {
		t.Errorf("Expected %+v, got %+v", want, res)
	}

	for _, id := range []string{"expired", "gone"} {
		if _, err := s.Intersection(ctx, id); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected %s to be dropped, got %v", id, err)
		}
	}
	ring, err := s.RingIDs(ctx, storage.IntersectionGroup("live"))
	if err != nil || !reflect.DeepEqual(ring, []string{"a1", "b1"}) {
		t.Errorf("Expected ring [a1 b1], got %v (%v)", ring, err)
	}
}

func TestSweepIntersectionsInPlace(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, filepath.Join(t.TempDir(), "test.db"))
	defer s.Close()

	seed(t, s, article(1, "A", "a1"))
	if err := s.SaveIntersection(ctx, "old", []int{1}, now.Add(-time.Hour)); err != nil {
		t.Fatalf("Failed to save intersection: %v", err)
	}
	if err := s.SaveIntersection(ctx, "new", []int{1}, now.Add(time.Hour)); err != nil {
		t.Fatalf("Failed to save intersection: %v", err)
	}

	res, err := s.SweepIntersections(ctx, "", now)
	if err != nil {
		t.Fatalf("Failed to sweep: %v", err)
	}
	if want := (storage.SweepResult{Kept: 1}); res != want {
		t.Errorf("Expected %+v, got %+v", want, res)
	}
	if _, err := s.Intersection(ctx, "old"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected old to be dropped, got %v", err)
	}
}

func TestSnippetsInArticles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "test.db"))
	defer s.Close()

	seed(t, s, article(1, "A", "a1", "a2", "a3"), article(2, "B", "b1"))

	got, err := s.SnippetsInArticles(ctx, []int{1, 2, 5}, 2)
	if err != nil {
		t.Fatalf("Failed to get snippets: %v", err)
	}
	want := map[int][]string{1: {"a1", "a2"}, 2: {"b1"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	counts, err := s.SnippetCounts(ctx)
	if err != nil || !reflect.DeepEqual(counts, map[int]int{1: 3, 2: 1}) {
		t.Errorf("Unexpected snippet counts %v (%v)", counts, err)
	}

	articles, err := s.ArticlesByID(ctx, []int{2, 1, 5})
	if err != nil {
		t.Fatalf("Failed to get articles: %v", err)
	}
	if len(articles) != 2 || articles[0].Title != "A" || articles[1].Title != "B" {
		t.Errorf("Expected articles A and B, got %v", articles)
	}
}

func TestRandomSnippetID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "test.db"))
	defer s.Close()

	if _, err := s.RandomSnippetID(ctx, storage.Group{}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on an empty database, got %v", err)
	}

	seed(t, s, article(1, "A", "a1", "a2"))
	for i := 0; i < 10; i++ {
		id, err := s.RandomSnippetID(ctx, storage.Group{})
		if err != nil {
			t.Fatalf("Failed to pick a snippet: %v", err)
		}
		if id != "a1" && id != "a2" {
			t.Errorf("Unexpected snippet id %q", id)
		}
	}
}

func TestInstall(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	livePath := filepath.Join(dir, "en.db")
	archiveDir := filepath.Join(dir, "archive")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local)

	live := newTestStore(t, livePath)
	seed(t, live, article(1, "Old", "o1"))
	live.Close()

	if err := os.MkdirAll(archiveDir, 0o750); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(archiveDir, "en-20200101-000000.db")
	if err := os.WriteFile(stale, nil, 0o640); err != nil {
		t.Fatal(err)
	}

	scratchPath := filepath.Join(dir, "en_scratch.db")
	scratch := newTestStore(t, scratchPath)
	seed(t, scratch, article(1, "A", "a1"), article(2, "B", "b1"))

	opts := storage.InstallOptions{
		LivePath:    livePath,
		ArchiveDir:  archiveDir,
		ArchiveDays: 30,
		MinSnippets: 5,
		MinArticles: 1,
		Now:         now,
	}
	if err := scratch.Install(ctx, opts); !errors.Is(err, storage.ErrSanityCheck) {
		t.Fatalf("Expected ErrSanityCheck, got %v", err)
	}

	scratch = newTestStore(t, scratchPath)
	opts.MinSnippets = 1
	if err := scratch.Install(ctx, opts); err != nil {
		t.Fatalf("Failed to install: %v", err)
	}

	if _, err := os.Stat(scratchPath); !os.IsNotExist(err) {
		t.Errorf("Expected scratch database to be moved, got %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("Expected stale archive to be pruned, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(archiveDir, "en-20260101-000000.db")); err != nil {
		t.Errorf("Expected live database to be archived: %v", err)
	}

	installed := newTestStore(t, livePath)
	defer installed.Close()
	ids, err := installed.ArticleIDs(ctx)
	if err != nil || !reflect.DeepEqual(ids, []int{1, 2}) {
		t.Errorf("Expected installed articles [1 2], got %v (%v)", ids, err)
	}
}
