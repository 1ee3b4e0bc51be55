package signals

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
)

// NewsProvider is the external collaborator supplying raw headlines for
// a symbol (spec §1: news/sentiment HTTP sources are out of scope — the
// engine only consumes this interface).
type NewsProvider interface {
	Headlines(ctx context.Context, symbol string) ([]string, error)
}

// StructuredNewsProvider is the alternative structured-sentiment path
// (spec §9 Open Question 3), modeled on original_source's
// agents/news_finnhub.py shape: already-scored articles instead of raw
// headlines to run through the keyword lexicon.
type StructuredNewsProvider interface {
	Sentiment(ctx context.Context, symbol string) (decimal.Decimal, bool, error)
}

var strongPositive = map[string]float64{
	"surge": 1.0, "soars": 1.0, "beats": 0.9, "breakthrough": 1.0,
	"upgrade": 0.9, "record": 0.8, "outperform": 0.9, "bullish": 0.9,
}

var mediumPositive = map[string]float64{
	"gain": 0.5, "rise": 0.5, "growth": 0.5, "improve": 0.5, "positive": 0.5,
	"strong": 0.5, "rally": 0.6,
}

var weakPositive = map[string]float64{
	"stable": 0.2, "steady": 0.2, "hold": 0.15, "in-line": 0.15,
}

var strongNegative = map[string]float64{
	"plunge": -1.0, "crash": -1.0, "downgrade": -0.9, "misses": -0.9,
	"bearish": -0.9, "lawsuit": -0.8, "fraud": -1.0, "bankruptcy": -1.0,
}

var mediumNegative = map[string]float64{
	"fall": -0.5, "decline": -0.5, "drop": -0.5, "weak": -0.5, "loss": -0.5,
	"cut": -0.5, "concerns": -0.5,
}

var weakNegative = map[string]float64{
	"slow": -0.2, "uncertain": -0.2, "caution": -0.15, "mixed": -0.15,
}

// ambiguous terms appear in both a positive and negative lexicon in
// common financial headline usage and are excluded rather than guessed.
var ambiguous = map[string]bool{
	"volatile": true, "active": true, "mixed": true,
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "without": true, "fails": true, "failed": true,
}

func lexiconWeight(word string) (float64, bool) {
	if ambiguous[word] {
		return 0, false
	}
	for _, lex := range []map[string]float64{strongPositive, mediumPositive, weakPositive, strongNegative, mediumNegative, weakNegative} {
		if w, ok := lex[word]; ok {
			return w, true
		}
	}
	return 0, false
}

// normalizeHeadline lowercases and strips punctuation for deduplication
// and tokenization.
func normalizeHeadline(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func headlineHash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ScoreHeadlines implements spec §4.3's keyword-lexicon news score:
// signed lexical weights (strong/medium/weak) over deduped headlines,
// with a negator-aware window (the 3 tokens preceding a scored word)
// that flips polarity, ambiguous terms ignored, dedup via normalized
// hash. Output is clamped to [-1,1].
func ScoreHeadlines(headlines []string) decimal.Decimal {
	seen := map[string]bool{}
	total := 0.0
	count := 0

	for _, h := range headlines {
		norm := normalizeHeadline(h)
		if norm == "" {
			continue
		}
		hash := headlineHash(norm)
		if seen[hash] {
			continue
		}
		seen[hash] = true

		tokens := strings.Fields(norm)
		for i, tok := range tokens {
			weight, ok := lexiconWeight(tok)
			if !ok {
				continue
			}
			windowStart := i - 3
			if windowStart < 0 {
				windowStart = 0
			}
			negated := false
			for j := windowStart; j < i; j++ {
				if negators[tokens[j]] {
					negated = true
					break
				}
			}
			if negated {
				weight = -weight
			}
			total += weight
			count++
		}
	}

	if count == 0 {
		return decimal.Zero
	}
	avg := total / float64(count)
	return clamp(decimal.NewFromFloat(avg), decimal.NewFromInt(-1), decimal.NewFromInt(1))
}
