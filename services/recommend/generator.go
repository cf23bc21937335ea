// Package recommend turns free-text requests into candidate titles using the
// Gemini language service, with a local fallback list when it is unavailable.
package recommend

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"
	"unicode/utf8"

	"cinewise/internal/metrics"
	"cinewise/models"
)

const (
	defaultExcludeWindow = 30
	suggestMinChars      = 3
	maxSuggestions       = 8
)

// Options configures a Generator.
type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	// ExcludeWindow caps how many of the most recent exclusions are sent upstream.
	ExcludeWindow int
	// Demo forces the fallback list even when a key is configured.
	Demo bool
}

// Generator proposes candidate titles for a free-text request.
type Generator struct {
	gemini        *geminiClient
	excludeWindow int
	demo          bool
}

func NewGenerator(opts Options) *Generator {
	if opts.ExcludeWindow <= 0 {
		opts.ExcludeWindow = defaultExcludeWindow
	}
	return &Generator{
		gemini:        newGeminiClient(opts.APIKey, opts.Model, opts.BaseURL, opts.HTTPClient),
		excludeWindow: opts.ExcludeWindow,
		demo:          opts.Demo,
	}
}

// Configured reports whether live generation is possible.
func (g *Generator) Configured() bool {
	return !g.demo && g.gemini.isConfigured()
}

var recommendationSchema = &geminiSchema{
	Type: "ARRAY",
	Items: &geminiSchema{
		Type: "OBJECT",
		Properties: map[string]*geminiSchema{
			"title":      {Type: "STRING", Description: "Exact title of the movie or show"},
			"media_type": {Type: "STRING", Enum: []string{"movie", "tv"}},
			"year":       {Type: "NUMBER", Description: "Release year (approximation is okay)"},
			"reason":     {Type: "STRING", Description: "A very short, punchy reason why this fits the request (max 10 words)"},
		},
		Required: []string{"title", "media_type", "reason"},
	},
}

// geminiRecommendation mirrors recommendationSchema; year arrives as a JSON number.
type geminiRecommendation struct {
	Title     string  `json:"title"`
	MediaType string  `json:"media_type"`
	Year      float64 `json:"year"`
	Reason    string  `json:"reason"`
}

// Generate asks for 8-10 candidates matching query that are not in exclude.
// It never fails: without a key, or on any upstream or parse error, it
// answers from the fallback list filtered by exclude.
func (g *Generator) Generate(ctx context.Context, query string, exclude []string) []models.Recommendation {
	if g.demo {
		metrics.GeneratorFallbacks.WithLabelValues("demo").Inc()
		return fallbackRecommendations(exclude)
	}
	if !g.gemini.isConfigured() {
		log.Printf("[recommend] no gemini api key; serving fallback list")
		metrics.GeneratorFallbacks.WithLabelValues("no_credential").Inc()
		return fallbackRecommendations(exclude)
	}

	text, err := g.gemini.generate(ctx, "recommend", g.recommendPrompt(query, exclude), recommendationSchema)
	if err != nil {
		log.Printf("[recommend] gemini request failed: %v", err)
		metrics.GeneratorFallbacks.WithLabelValues("error").Inc()
		return fallbackRecommendations(exclude)
	}
	if text == "" {
		return []models.Recommendation{}
	}

	var raw []geminiRecommendation
	if err := decodeJSONText(text, &raw); err != nil {
		log.Printf("[recommend] %v", err)
		metrics.GeneratorFallbacks.WithLabelValues("malformed").Inc()
		return fallbackRecommendations(exclude)
	}

	recs := make([]models.Recommendation, 0, len(raw))
	for _, r := range raw {
		rec := models.Recommendation{
			Title:     strings.TrimSpace(r.Title),
			MediaType: models.MediaType(strings.TrimSpace(r.MediaType)),
			Reason:    strings.TrimSpace(r.Reason),
		}
		if mt, ok := models.ParseMediaType(r.MediaType); ok {
			rec.MediaType = mt
		}
		if r.Year > 0 {
			rec.Year = int(math.Round(r.Year))
		}
		recs = append(recs, rec)
	}
	return recs
}

func (g *Generator) recommendPrompt(query string, exclude []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a movie and TV show recommendation engine.
Based on the user's input: %q, recommend 8-10 specific movies or TV series.
If the user asks for a specific genre, mood, year, or actor, follow those constraints strictly.
Prefer a diverse selection unless the user asked otherwise.
`, query)

	if recent := recentExclusions(exclude, g.excludeWindow); len(recent) > 0 {
		fmt.Fprintf(&b, `
IMPORTANT: The user has already seen recommendations for: [%s].
Do NOT recommend these exact titles again. Find fresh alternatives that still match the request.
`, strings.Join(recent, ", "))
	}
	return b.String()
}

// recentExclusions keeps the last n entries; older exclusions are dropped.
func recentExclusions(exclude []string, n int) []string {
	if len(exclude) <= n {
		return exclude
	}
	return exclude[len(exclude)-n:]
}

var suggestionSchema = &geminiSchema{
	Type:  "ARRAY",
	Items: &geminiSchema{Type: "STRING"},
}

const suggestPrompt = `The user is typing a search query for movies or TV shows: %q.
Generate 6-8 distinct, evocative, searchable mood, genre or theme phrases that refine their intent.

Rules:
1. Do NOT return specific movie or show titles.
2. Return descriptive categories, sub-genres, or plot archetypes.
3. Interpret comparative intents (e.g. "Like Inception but..." -> "Mind-bending psychological sci-fi").
4. Keep every suggestion between 2 and 6 words.
5. Mix broad genres with specific vibes (e.g. "Space opera" and "Claustrophobic sci-fi horror").

Examples:
Input: "Inception but scarier" -> ["Psychological thrillers", "Mind-bending horror", "Surreal nightmare mystery", "Existential sci-fi horror"]
Input: "fast paced" -> ["High-octane action", "Adrenaline-fueled heists", "Intense survival thrillers"]

Return ONLY a JSON array of strings.`

// Suggest returns short mood phrases refining a partially typed query.
// Inputs under three characters, a missing key, or any failure yield an
// empty list.
func (g *Generator) Suggest(ctx context.Context, partial string) []string {
	partial = strings.TrimSpace(partial)
	if !g.Configured() || utf8.RuneCountInString(partial) < suggestMinChars {
		return []string{}
	}

	text, err := g.gemini.generate(ctx, "suggest", fmt.Sprintf(suggestPrompt, partial), suggestionSchema)
	if err != nil {
		log.Printf("[recommend] mood suggestions failed: %v", err)
		return []string{}
	}
	if text == "" {
		return []string{}
	}

	var raw []string
	if err := decodeJSONText(text, &raw); err != nil {
		log.Printf("[recommend] %v", err)
		return []string{}
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
