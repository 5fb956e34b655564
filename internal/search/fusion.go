package search

import (
	"sort"

	"github.com/yoniassia/memclawz/internal/index"
)

// candidate accumulates the raw per-signal scores for one document before
// fusion. A document reached by only one signal keeps the other at zero.
type candidate struct {
	doc       *index.Document
	namespace string

	vecScore float64
	kwScore  float64
	hasVec   bool
	hasKw    bool

	matchedTerms []string
	seq          uint64
}

// candidatePool collects candidates keyed by namespace and document ID.
type candidatePool struct {
	byKey map[string]*candidate
}

func newCandidatePool() *candidatePool {
	return &candidatePool{byKey: make(map[string]*candidate)}
}

func (p *candidatePool) key(namespace, id string) string {
	return namespace + "\x00" + id
}

func (p *candidatePool) get(namespace string, doc *index.Document) *candidate {
	k := p.key(namespace, doc.ID)
	c, ok := p.byKey[k]
	if !ok {
		c = &candidate{doc: doc, namespace: namespace}
		p.byKey[k] = c
	}
	return c
}

func (p *candidatePool) addVector(namespace string, hit *index.VectorHit) {
	c := p.get(namespace, hit.Doc)
	c.hasVec = true
	c.vecScore = hit.Score
	c.seq = hit.Seq
}

func (p *candidatePool) addKeyword(namespace string, hit *index.KeywordHit) {
	c := p.get(namespace, hit.Doc)
	c.hasKw = true
	c.kwScore = hit.Score
	c.matchedTerms = hit.MatchedTerms
}

func (p *candidatePool) all() []*candidate {
	out := make([]*candidate, 0, len(p.byKey))
	for _, c := range p.byKey {
		out = append(out, c)
	}
	return out
}

// fuse normalizes each signal independently over the candidate pool with
// min-max scaling, then combines them as a weighted sum. Candidates missing a
// signal contribute zero for it. Ordering is fully deterministic: fused score
// descending, then normalized vector score descending, then document ID
// ascending.
func fuse(candidates []*candidate, vectorWeight, keywordWeight float64) []*Result {
	if len(candidates) == 0 {
		return []*Result{}
	}

	normVec := normalize(candidates, func(c *candidate) (float64, bool) { return c.vecScore, c.hasVec })
	normKw := normalize(candidates, func(c *candidate) (float64, bool) { return c.kwScore, c.hasKw })

	results := make([]*Result, len(candidates))
	for i, c := range candidates {
		results[i] = &Result{
			ID:           c.doc.ID,
			Namespace:    c.namespace,
			Text:         c.doc.Text,
			SourcePath:   c.doc.SourcePath,
			StartLine:    c.doc.StartLine,
			EndLine:      c.doc.EndLine,
			Heading:      c.doc.Heading,
			Shared:       c.doc.Shared,
			Score:        vectorWeight*normVec[i] + keywordWeight*normKw[i],
			VectorScore:  normVec[i],
			KeywordScore: normKw[i],
			MatchedTerms: c.matchedTerms,
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].VectorScore != results[j].VectorScore {
			return results[i].VectorScore > results[j].VectorScore
		}
		if results[i].Namespace != results[j].Namespace {
			return results[i].Namespace < results[j].Namespace
		}
		return results[i].ID < results[j].ID
	})

	return results
}

// normalize min-max scales one signal over the candidates that carry it.
// When every carrier has the same score the signal collapses to 1.0 for all
// of them, so a lone exact match still counts at full weight.
func normalize(candidates []*candidate, extract func(*candidate) (float64, bool)) []float64 {
	minScore, maxScore := 0.0, 0.0
	first := true
	for _, c := range candidates {
		score, ok := extract(c)
		if !ok {
			continue
		}
		if first {
			minScore, maxScore = score, score
			first = false
			continue
		}
		if score < minScore {
			minScore = score
		}
		if score > maxScore {
			maxScore = score
		}
	}

	out := make([]float64, len(candidates))
	spread := maxScore - minScore
	for i, c := range candidates {
		score, ok := extract(c)
		if !ok {
			continue
		}
		if spread == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = (score - minScore) / spread
	}
	return out
}
