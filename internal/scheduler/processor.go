package scheduler

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/config"
	"github.com/deidaraiorek/snippethunt/internal/mwapi"
	"github.com/deidaraiorek/snippethunt/internal/snippet"
	"github.com/deidaraiorek/snippethunt/internal/storage"
)

// Processor turns a batch of page ids into articles with their snippets.
// Each worker owns one Processor and never shares it.
type Processor interface {
	Process(ctx context.Context, pageIDs []int) ([]storage.ArticleSnippets, error)
}

// ProcessorFactory builds the Processor for worker n.
type ProcessorFactory func(n int) (Processor, error)

// ArticleProcessor fetches current page text from the wiki API and runs it
// through an extractor.
type ArticleProcessor struct {
	cfg       *config.Config
	api       *mwapi.Client
	extractor *snippet.Extractor
	logger    *zap.Logger
}

func NewArticleProcessor(cfg *config.Config, api *mwapi.Client, extractor *snippet.Extractor, logger *zap.Logger) *ArticleProcessor {
	return &ArticleProcessor{cfg: cfg, api: api, extractor: extractor, logger: logger}
}

func (p *ArticleProcessor) Stats() *snippet.Stats {
	return p.extractor.Stats()
}

func (p *ArticleProcessor) Process(ctx context.Context, pageIDs []int) ([]storage.ArticleSnippets, error) {
	ids := make([]string, len(pageIDs))
	for i, id := range pageIDs {
		ids[i] = strconv.Itoa(id)
	}
	it := p.api.Query(url.Values{
		"pageids": {strings.Join(ids, "|")},
		"prop":    {"revisions"},
		"rvprop":  {"content"},
		"rvslots": {"main"},
	})
	defer it.Close()

	var out []storage.ArticleSnippets
	for {
		resp, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		for _, page := range mwapi.Pages(resp) {
			a, err := p.article(ctx, page)
			if err != nil {
				return nil, err
			}
			if len(a.Snippets) > 0 {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (p *ArticleProcessor) article(ctx context.Context, page mwapi.Page) (storage.ArticleSnippets, error) {
	title := page.Title()
	revs := mwapi.Revisions(page)
	if title == "" || page.Missing() || len(revs) == 0 {
		return storage.ArticleSnippets{}, nil
	}
	text := mwapi.RevisionContent(revs[0])
	if text == "" {
		return storage.ArticleSnippets{}, nil
	}

	snippets, err := p.extractor.Extract(ctx, text)
	if err != nil {
		return storage.ArticleSnippets{}, err
	}

	a := storage.ArticleSnippets{
		Article: storage.Article{
			PageID: page.ID(),
			URL:    p.cfg.WikiURL(title),
			Title:  title,
		},
	}
	for _, s := range snippets {
		row := storage.Snippet{
			ID:      snippet.ID(title, s.HTML),
			HTML:    s.HTML,
			Section: snippet.SectionAnchor(s.Section),
		}
		if d, ok := s.OldestDate(); ok {
			row.OldestTemplateDate = d
		}
		a.Snippets = append(a.Snippets, row)
	}
	p.logger.Debug("extracted article",
		zap.String("title", title),
		zap.Int("snippets", len(a.Snippets)))
	return a, nil
}
