package sparse

import "math"

const (
	defaultK1 = 1.2
	defaultB  = 0.75
)

// Scorer computes BM25 term-weight scores.
type Scorer struct {
	k1 float64
	b  float64
}

// NewScorer creates a Scorer with the standard k1=1.2, b=0.75 parameters.
func NewScorer() *Scorer {
	return &Scorer{k1: defaultK1, b: defaultB}
}

// NewScorerWithParams creates a Scorer with explicit BM25 parameters.
func NewScorerWithParams(k1, b float64) *Scorer {
	if k1 <= 0 {
		k1 = defaultK1
	}
	if b < 0 || b > 1 {
		b = defaultB
	}
	return &Scorer{k1: k1, b: b}
}

// Scores returns one normalized score per document for the given query.
// Raw BM25 scores are unbounded, so they are divided by the per-query
// maximum to land in [0, 1] before fusion with the dense score. An empty
// query or corpus yields all zeros.
func (s *Scorer) Scores(query string, docs []string) []float64 {
	scores := make([]float64, len(docs))
	queryTokens := uniqueTokens(Tokenize(query))
	if len(queryTokens) == 0 || len(docs) == 0 {
		return scores
	}

	docTokens := make([][]string, len(docs))
	totalLen := 0
	for i, doc := range docs {
		docTokens[i] = Tokenize(doc)
		totalLen += len(docTokens[i])
	}
	if totalLen == 0 {
		return scores
	}
	avgDl := float64(totalLen) / float64(len(docs))

	// Document frequency per query term across the candidate set.
	df := make(map[string]int, len(queryTokens))
	termFreqs := make([]map[string]int, len(docs))
	for i, tokens := range docTokens {
		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		termFreqs[i] = tf
		for _, term := range queryTokens {
			if tf[term] > 0 {
				df[term]++
			}
		}
	}

	n := float64(len(docs))
	maxScore := 0.0
	for i := range docs {
		dl := float64(len(docTokens[i]))
		var score float64
		for _, term := range queryTokens {
			tf := float64(termFreqs[i][term])
			if tf == 0 {
				continue
			}
			nt := float64(df[term])
			idf := math.Log((n-nt+0.5)/(nt+0.5) + 1)
			score += idf * (tf * (s.k1 + 1)) / (tf + s.k1*(1-s.b+s.b*dl/avgDl))
		}
		scores[i] = score
		if score > maxScore {
			maxScore = score
		}
	}

	if maxScore > 0 {
		for i := range scores {
			scores[i] /= maxScore
		}
	}

	return scores
}

// uniqueTokens drops repeated terms so a duplicated query word cannot
// inflate document frequency past the corpus size.
func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	unique := tokens[:0]
	for _, token := range tokens {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		unique = append(unique, token)
	}
	return unique
}
