package snippet

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/deidaraiorek/snippethunt/internal/mwapi"
)

const templateNamespace = "10"

// ResolveRedirects extends names with every template that redirects to one
// of them. Names are given without the namespace prefix, and so are the
// results.
func ResolveRedirects(ctx context.Context, api *mwapi.Client, names []string) ([]string, error) {
	out := append([]string(nil), names...)
	for start := 0; start < len(names); start += 50 {
		end := min(start+50, len(names))
		titles := make([]string, 0, end-start)
		for _, n := range names[start:end] {
			titles = append(titles, "Template:"+n)
		}
		it := api.Query(url.Values{
			"titles":      {strings.Join(titles, "|")},
			"prop":        {"redirects"},
			"rdnamespace": {templateNamespace},
			"rdlimit":     {"max"},
		})
		for {
			resp, ok, err := it.Next(ctx)
			if err != nil {
				return nil, fmt.Errorf("resolve template redirects: %w", err)
			}
			if !ok {
				break
			}
			for _, page := range mwapi.Pages(resp) {
				for _, title := range mwapi.PageRedirects(page) {
					out = append(out, stripNamespace(title))
				}
			}
		}
	}
	return NewTemplateSet(out).Names(), nil
}

func stripNamespace(title string) string {
	if i := strings.IndexByte(title, ':'); i >= 0 {
		return title[i+1:]
	}
	return title
}
