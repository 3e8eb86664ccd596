package stats

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
)

//go:embed crawlers.txt
var crawlersList string

//go:embed spammers.txt
var spammersList string

// SpamFilter recognises crawler user agents and spam referrers.
type SpamFilter struct {
	userAgents []*regexp.Regexp
	referrers  []*regexp.Regexp
}

// NewSpamFilter compiles the embedded crawler and referrer lists.
func NewSpamFilter() (*SpamFilter, error) {
	uas, err := compileLines(crawlersList, false)
	if err != nil {
		return nil, fmt.Errorf("crawler list: %w", err)
	}
	refs, err := compileLines(spammersList, true)
	if err != nil {
		return nil, fmt.Errorf("referrer list: %w", err)
	}
	return &SpamFilter{userAgents: uas, referrers: refs}, nil
}

// IsSpam reports whether a request should be left out of the log. Missing
// values never match.
func (f *SpamFilter) IsSpam(userAgent, referrer string) bool {
	for _, r := range f.userAgents {
		if r.MatchString(userAgent) {
			return true
		}
	}
	if referrer == "" {
		return false
	}
	for _, r := range f.referrers {
		if r.MatchString(referrer) {
			return true
		}
	}
	return false
}

func compileLines(list string, literal bool) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, line := range strings.Split(list, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if literal {
			line = regexp.QuoteMeta(line)
		}
		r, err := regexp.Compile("(?i)" + line)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", line, err)
		}
		out = append(out, r)
	}
	return out, nil
}
