// Package config provides the per-language configuration tables and the
// process settings read from the environment. Language tables are embedded
// as YAML and inherit global -> base -> language: scalars override, lists
// are concatenated and maps are merged.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed languages.yaml
var languagesYAML []byte

// ErrUnknownLanguage is returned for a language code with no table.
var ErrUnknownLanguage = errors.New("unknown language code")

// APIConfig holds limits of the JSON API surface.
type APIConfig struct {
	MaxReturnedSnippets int `yaml:"max_returned_snippets"`
}

// Config is the effective configuration of one language.
type Config struct {
	LangCode string `yaml:"lang_code"`
	LangName string `yaml:"lang_name"`
	LangDir  string `yaml:"lang_dir"` // ltr|rtl

	Database        string `yaml:"database"`
	WikipediaDomain string `yaml:"wikipedia_domain"`
	HiddenCategory  string `yaml:"hidden_category"`

	CitationNeededTemplates      []string `yaml:"citation_needed_templates"`
	CitationNeededTemplateName   string   `yaml:"citation_needed_template_name"`
	WikilinkPrefixBlacklist      []string `yaml:"wikilink_prefix_blacklist"`
	TagsBlacklist                []string `yaml:"tags_blacklist"`
	TemplatesBlacklist           []string `yaml:"templates_blacklist"`
	CategoryNameRegexpsBlacklist []string `yaml:"category_name_regexps_blacklist"`
	AcceptLanguage               []string `yaml:"accept_language"`

	SnippetMinSize          int               `yaml:"snippet_min_size"`
	SnippetMaxSize          int               `yaml:"snippet_max_size"`
	MinSnippetsSanityCheck  int               `yaml:"min_snippets_sanity_check"`
	MinArticlesSanityCheck  int               `yaml:"min_articles_sanity_check"`
	HTMLSnippet             bool              `yaml:"html_snippet"`
	HTMLCSSSelectorsToStrip []string          `yaml:"html_css_selectors_to_strip"`
	HTMLParseParameters     map[string]string `yaml:"html_parse_parameters"`
	Extract                 string            `yaml:"extract"` // snippet|section
	OldSnippetThresholdDays int               `yaml:"old_snippet_threshold_days"`

	BeginnersLink              string `yaml:"beginners_link"`
	BeginnersLinkTitle         string `yaml:"beginners_link_title"`
	ReliableSourcesLink        string `yaml:"reliable_sources_link"`
	LeadSectionPolicyLink      string `yaml:"lead_section_policy_link"`
	LeadSectionPolicyLinkTitle string `yaml:"lead_section_policy_link_title"`

	// Global
	ArchiveDir                 string    `yaml:"archive_dir"`
	ArchiveDurationDays        int       `yaml:"archive_duration_days"`
	LogDir                     string    `yaml:"log_dir"`
	FallbackLangTag            string    `yaml:"fallback_lang_tag"`
	FlaggedOff                 []string  `yaml:"flagged_off"`
	Profile                    bool      `yaml:"profile"`
	StatsMaxAgeDays            int       `yaml:"stats_max_age_days"`
	UserAgent                  string    `yaml:"user_agent"`
	PetscanURL                 string    `yaml:"petscan_url"`
	PetscanTimeoutS            int       `yaml:"petscan_timeout_s"`
	PetscanDepth               int       `yaml:"petscan_depth"`
	PagepileURL                string    `yaml:"pagepile_url"`
	PagepileTimeoutS           int       `yaml:"pagepile_timeout_s"`
	IntersectionMaxSize        int       `yaml:"intersection_max_size"`
	IntersectionExpirationDays int       `yaml:"intersection_expiration_days"`
	API                        APIConfig `yaml:"api"`
}

// APIURL is the MediaWiki action API endpoint of the language's wiki.
func (c *Config) APIURL() string {
	return "https://" + c.WikipediaDomain + "/w/api.php"
}

// WikiURL is the public article URL for title.
func (c *Config) WikiURL(title string) string {
	return "https://" + c.WikipediaDomain + "/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

// WikiName is the replica database name without the "_p" suffix, as used by
// PetScan and PagePile.
func (c *Config) WikiName() string {
	return strings.TrimSuffix(c.Database, "_p")
}

// OldSnippetThreshold is the age after which a citation-needed template is
// considered stale. Zero disables the notice.
func (c *Config) OldSnippetThreshold() time.Duration {
	return time.Duration(c.OldSnippetThresholdDays) * 24 * time.Hour
}

// IsFlaggedOff reports whether a feature flag is disabled.
func (c *Config) IsFlaggedOff(flag string) bool {
	for _, f := range c.FlaggedOff {
		if f == flag {
			return true
		}
	}
	return false
}

type tables struct {
	Global    map[string]any            `yaml:"global"`
	Base      map[string]any            `yaml:"base"`
	Languages map[string]map[string]any `yaml:"languages"`
}

var (
	loadOnce sync.Once
	loaded   tables
	loadErr  error
)

func load() (tables, error) {
	loadOnce.Do(func() {
		loadErr = yaml.Unmarshal(languagesYAML, &loaded)
		if loadErr != nil {
			loadErr = fmt.Errorf("failed to parse language tables: %w", loadErr)
		}
	})
	return loaded, loadErr
}

// Languages returns the sorted list of configured language codes.
func Languages() []string {
	t, err := load()
	if err != nil {
		return nil
	}
	codes := make([]string, 0, len(t.Languages))
	for code := range t.Languages {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ForLanguage computes the effective configuration for a language code.
func ForLanguage(code string) (*Config, error) {
	t, err := load()
	if err != nil {
		return nil, err
	}
	lang, ok := t.Languages[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}

	merged := inherit(inherit(t.Global, t.Base), lang)
	merged["lang_code"] = code

	cfg, err := decode(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config for %s: %w", code, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config for %s: %w", code, err)
	}
	return cfg, nil
}

// Global returns the configuration shared by all languages. Per-language
// keys are left at their zero values.
func Global() (*Config, error) {
	t, err := load()
	if err != nil {
		return nil, err
	}
	return decode(inherit(nil, t.Global))
}

func decode(m map[string]any) (*Config, error) {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database == "" || c.WikipediaDomain == "" {
		return errors.New("database and wikipedia_domain are required")
	}
	if len(c.CitationNeededTemplates) == 0 {
		return errors.New("citation_needed_templates must not be empty")
	}
	if c.SnippetMinSize < 0 || c.SnippetMaxSize <= c.SnippetMinSize {
		return errors.New("snippet_max_size must be greater than snippet_min_size")
	}
	switch c.Extract {
	case "snippet", "section":
	default:
		return fmt.Errorf("extract must be snippet or section, got %q", c.Extract)
	}
	switch c.LangDir {
	case "", "ltr", "rtl":
	default:
		return fmt.Errorf("lang_dir must be ltr or rtl, got %q", c.LangDir)
	}
	return nil
}

// inherit returns a copy of base overlaid with child.
func inherit(base, child map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(child))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range child {
		if prev, ok := out[k]; ok {
			switch cv := v.(type) {
			case []any:
				if pv, ok := prev.([]any); ok {
					joined := make([]any, 0, len(pv)+len(cv))
					v = append(append(joined, pv...), cv...)
				}
			case map[string]any:
				if pv, ok := prev.(map[string]any); ok {
					v = inherit(pv, cv)
				}
			}
		}
		out[k] = v
	}
	return out
}
