package rules

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/oratio/pkg/speech"
)

// ErrUnknownLanguage is returned by [Repository.Load] when no pack exists for
// the requested language.
var ErrUnknownLanguage = errors.New("rules: unknown language")

//go:embed packs/*.yaml
var builtinPacks embed.FS

// PackFile is the YAML representation of a rule pack.
//
// Example:
//
//	language: en
//	categories:
//	  - name: filler_words
//	    rules:
//	      - name: basic_fillers
//	        pattern: '\b(um+|uh+)\b'
//	        severity: low
//	        max_matches_per_minute: 10
//	        context_window: 2
type PackFile struct {
	Language   string         `yaml:"language"`
	Categories []CategoryFile `yaml:"categories"`
}

// CategoryFile is one category block inside a [PackFile].
type CategoryFile struct {
	Name  string     `yaml:"name"`
	Rules []RuleFile `yaml:"rules"`
}

// RuleFile is the YAML representation of a single rule.
type RuleFile struct {
	Name                string  `yaml:"name"`
	Pattern             string  `yaml:"pattern"`
	Severity            string  `yaml:"severity"`
	Description         string  `yaml:"description"`
	Tip                 string  `yaml:"tip"`
	MinMatches          int     `yaml:"min_matches"`
	MaxMatchesPerMinute float64 `yaml:"max_matches_per_minute"`
	ContextWindow       int     `yaml:"context_window"`
}

// RepositoryOption configures a [Repository].
type RepositoryOption func(*Repository)

// WithDir makes the repository read "<language>.yaml" files from dir before
// falling back to the built-in packs.
func WithDir(dir string) RepositoryOption {
	return func(r *Repository) {
		r.dir = dir
	}
}

// WithFS replaces the built-in pack filesystem. Files are looked up as
// "packs/<language>.yaml". Intended for tests.
func WithFS(fsys fs.FS) RepositoryOption {
	return func(r *Repository) {
		r.builtin = fsys
	}
}

// Repository loads, compiles and memoises rule packs per language. It is
// constructed once at startup and shared; it is safe for concurrent use.
type Repository struct {
	dir     string
	builtin fs.FS

	mu    sync.RWMutex
	packs map[string]*Pack
}

// NewRepository returns a [Repository] serving the embedded packs, optionally
// overridden by files from [WithDir].
func NewRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		builtin: builtinPacks,
		packs:   make(map[string]*Pack),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Load returns the compiled pack for language, reading and compiling it on
// first use. Returns an error wrapping [ErrUnknownLanguage] when no pack
// file exists for language.
func (r *Repository) Load(language string) (*Pack, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return nil, fmt.Errorf("%w: empty language code", ErrUnknownLanguage)
	}

	r.mu.RLock()
	p, ok := r.packs[language]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	f, err := r.open(language)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pf, err := DecodePack(f)
	if err != nil {
		return nil, fmt.Errorf("rules: load %q: %w", language, err)
	}
	p = Compile(language, pf)

	r.mu.Lock()
	r.packs[language] = p
	r.mu.Unlock()
	return p, nil
}

// Reload drops every memoised pack so the next [Repository.Load] re-reads
// the files.
func (r *Repository) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packs = make(map[string]*Pack)
}

// Languages lists every language for which a pack file is available.
func (r *Repository) Languages() []string {
	seen := map[string]struct{}{}
	collect := func(names []string) {
		for _, n := range names {
			if lang, ok := strings.CutSuffix(n, ".yaml"); ok {
				seen[lang] = struct{}{}
			}
		}
	}
	if r.dir != "" {
		if entries, err := os.ReadDir(r.dir); err == nil {
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			collect(names)
		}
	}
	if entries, err := fs.ReadDir(r.builtin, "packs"); err == nil {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		collect(names)
	}

	langs := make([]string, 0, len(seen))
	for l := range seen {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

func (r *Repository) open(language string) (io.ReadCloser, error) {
	name := language + ".yaml"
	if r.dir != "" {
		f, err := os.Open(filepath.Join(r.dir, name))
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("rules: open %q: %w", name, err)
		}
	}
	f, err := r.builtin.Open("packs/" + name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, language)
		}
		return nil, fmt.Errorf("rules: open builtin %q: %w", name, err)
	}
	return f, nil
}

// DecodePack parses a YAML rule pack, rejecting unknown keys.
func DecodePack(r io.Reader) (*PackFile, error) {
	var pf PackFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("decode pack yaml: %w", err)
	}
	return &pf, nil
}

// Compile turns a decoded pack into a [Pack]. Rules whose pattern does not
// compile are logged and skipped; they never fail the pack.
func Compile(language string, pf *PackFile) *Pack {
	p := &Pack{
		Language: language,
		rules:    make(map[string][]Rule, len(pf.Categories)),
	}
	for _, cat := range pf.Categories {
		if _, dup := p.rules[cat.Name]; !dup {
			p.Categories = append(p.Categories, cat.Name)
		}
		for _, rf := range cat.Rules {
			m, err := compileMatcher(rf.Pattern)
			if err != nil {
				slog.Warn("skipping rule with invalid pattern",
					"language", language,
					"category", cat.Name,
					"rule", rf.Name,
					"err", err,
				)
				continue
			}
			p.rules[cat.Name] = append(p.rules[cat.Name], Rule{
				Name:                ruleName(rf, cat.Name),
				Category:            cat.Name,
				Matcher:             m,
				Severity:            speech.ParseSeverity(rf.Severity),
				Description:         rf.Description,
				Tip:                 rf.Tip,
				MinMatches:          rf.MinMatches,
				MaxMatchesPerMinute: rf.MaxMatchesPerMinute,
				ContextWindow:       rf.ContextWindow,
			})
		}
	}
	return p
}

func compileMatcher(pattern string) (Matcher, error) {
	switch pattern {
	case PatternSlowPace:
		return SpecialRule{Kind: SlowPace}, nil
	case PatternFastPace:
		return SpecialRule{Kind: FastPace}, nil
	case PatternLongPause:
		return SpecialRule{Kind: LongPause}, nil
	case "":
		return nil, errors.New("empty pattern")
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	return RegexRule{Pattern: re}, nil
}

func ruleName(rf RuleFile, category string) string {
	if rf.Name != "" {
		return rf.Name
	}
	return category
}
