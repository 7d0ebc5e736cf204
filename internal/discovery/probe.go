package discovery

import (
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/codeplane-dev/codeplane/internal/ignore"
	"github.com/codeplane-dev/codeplane/internal/langregistry"
	"github.com/codeplane-dev/codeplane/internal/tsparser"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// ProbeConfig bounds how much sampling a probe does before deciding a
// candidate context is valid or invalid.
type ProbeConfig struct {
	MaxSample int
	MinSuccess int
	MinRatio   float64
}

// DefaultProbeConfig matches the original implementation's thresholds.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{MaxSample: 10, MinSuccess: 1, MinRatio: 0.5}
}

// dataFamilies relax parse-validation to "the sampled bytes are valid
// UTF-8" (no tree is built) since they have no meaningful def/ref structure
// to extract.
var dataFamilies = map[types.LanguageFamily]bool{
	"json_yaml": true,
	"toml":      true,
	"markdown":  true,
}

// ProbeResult is the outcome of validating one candidate context.
type ProbeResult struct {
	Context      types.CandidateContext
	Valid        bool
	FilesSampled int
	FilesPassed  int
	Reason       string
}

// Probe validates CandidateContexts by sampling files under their root and
// checking they parse.
type Probe struct {
	repoRoot string
	config   ProbeConfig
	parser   *tsparser.Parser
	engine   *ignore.Engine
}

// NewProbe builds a Probe rooted at repoRoot.
func NewProbe(repoRoot string, config ProbeConfig, parser *tsparser.Parser, engine *ignore.Engine) *Probe {
	return &Probe{repoRoot: repoRoot, config: config, parser: parser, engine: engine}
}

// Validate samples up to config.MaxSample files under ctx's root matching
// the family's default include globs, and reports ctx valid iff at least
// MinSuccess files parse and the overall success ratio clears MinRatio
// (the ratio check is skipped when the sample is small enough that
// MinSuccess alone already proves the point).
func (p *Probe) Validate(ctx types.CandidateContext) ProbeResult {
	spec, ok := langregistry.Get(ctx.Language)
	if !ok {
		return ProbeResult{Context: ctx, Valid: false, Reason: "unregistered language family"}
	}

	root := filepath.Join(p.repoRoot, filepath.FromSlash(ctx.RootPath))
	if _, err := os.Stat(root); err != nil {
		return ProbeResult{Context: ctx, Valid: false, Reason: "context root does not exist"}
	}

	sampled := p.sampleFiles(root, spec.DefaultIncludeGlobs)
	if len(sampled) == 0 {
		return ProbeResult{Context: ctx, Valid: false, Reason: "no matching files found"}
	}

	passed := 0
	for _, path := range sampled {
		if p.validateFile(path, ctx.Language) {
			passed++
		}
	}

	result := ProbeResult{Context: ctx, FilesSampled: len(sampled), FilesPassed: passed}
	if passed < p.config.MinSuccess {
		result.Reason = "insufficient parses"
		return result
	}
	if len(sampled) > p.config.MinSuccess && float64(passed)/float64(len(sampled)) < p.config.MinRatio {
		result.Reason = "low parse ratio"
		return result
	}
	result.Valid = true
	return result
}

func (p *Probe) sampleFiles(root string, includeGlobs []string) []string {
	var files []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if len(files) >= p.config.MaxSample {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if path != root && p.engine != nil && p.engine.ShouldIgnore(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if p.engine != nil && p.engine.ShouldIgnore(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, glob := range includeGlobs {
			if ok, _ := doublestar.Match(glob, rel); ok {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	return files
}

func (p *Probe) validateFile(path string, family types.LanguageFamily) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	if dataFamilies[family] || !tsparser.HasGrammar(family) {
		return isValidUTF8Sample(content)
	}

	tree, err := p.parser.Parse(family, content)
	if err != nil {
		return false
	}
	defer tree.Close()
	return !tree.RootNode().HasError()
}

func isValidUTF8Sample(content []byte) bool {
	const sampleBytes = 8192
	if len(content) > sampleBytes {
		content = content[:sampleBytes]
	}
	return utf8.Valid(content)
}
