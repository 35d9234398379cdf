// Deduplication clusters near-duplicate summaries. A bloom filter fast
// path pre-screens candidate pairs by shingle-set membership: if a bloom
// filter proves a pair shares zero shingles (blooms never false-negative),
// the expensive Jaccard/cosine/edit-distance comparison is skipped
// outright. A performance optimization only; it never produces a false
// "not a duplicate" for genuinely overlapping text.
package merge

import (
	"crypto/rand"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"golang.org/x/crypto/sha3"

	"github.com/entropycollective/batchsum/pkg/config"
	"github.com/entropycollective/batchsum/pkg/similarity"
	"github.com/entropycollective/batchsum/pkg/topics"
	"github.com/entropycollective/batchsum/pkg/types"
)

// DedupParams configures one deduplication pass.
type DedupParams struct {
	SimilarityThreshold    float64
	UseSemanticSimilarity  bool
	ContextWindow          int
	MinLengthForComparison int
	PreserveLongerVersion  bool
}

// DedupParamsFromConfig derives DedupParams from the shared MergingConfig,
// filling in MinLengthForComparison and PreserveLongerVersion — these stay
// local constants rather than growing the shared config surface for a
// single call site.
func DedupParamsFromConfig(cfg config.DuplicateDetection) DedupParams {
	return DedupParams{
		SimilarityThreshold:    cfg.SimilarityThreshold,
		UseSemanticSimilarity:  cfg.UseSemanticSimilarity,
		ContextWindow:          cfg.ContextWindow,
		MinLengthForComparison: 20,
		PreserveLongerVersion:  true,
	}
}

// salt seeds each dedup pass's bloom filters so shingle hashes aren't
// predictable across batches.
func newSalt() []byte {
	seed := make([]byte, 16)
	_, _ = rand.Read(seed)
	digest := sha3.Sum256(seed)
	return digest[:]
}

func shingles(s string, k int) []string {
	tokens := strings.Fields(strings.ToLower(s))
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= k {
		return []string{strings.Join(tokens, " ")}
	}
	out := make([]string, 0, len(tokens)-k+1)
	for i := 0; i+k <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+k], " "))
	}
	return out
}

func shingleFilter(shingles []string, salt []byte) *bloom.BloomFilter {
	filter := bloom.NewWithEstimates(uint(len(shingles)+8), 0.01)
	for _, sh := range shingles {
		filter.Add(append([]byte(sh), salt...))
	}
	return filter
}

// shareAnyShingle reports whether any shingle of a is possibly present in
// b's bloom filter. A false result is a proof of zero overlap (no
// false negatives); a true result requires the exact comparison to confirm.
func shareAnyShingle(aShingles []string, bFilter *bloom.BloomFilter, salt []byte) bool {
	for _, sh := range aShingles {
		if bFilter.Test(append([]byte(sh), salt...)) {
			return true
		}
	}
	return false
}

// union-find for clustering near-duplicate indices.
type unionFind struct{ parent []int }

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[ra] = rb
	}
}

// Deduplicate clusters summaries by pairwise similarity and returns one
// representative per cluster.
func Deduplicate(summaries []string, params DedupParams, extractor *topics.Extractor) types.DeduplicationResult {
	n := len(summaries)
	result := types.DeduplicationResult{OriginalCount: n}
	if n == 0 {
		return result
	}

	salt := newSalt()
	shinglesOf := make([][]string, n)
	filters := make([]*bloom.BloomFilter, n)
	for i, s := range summaries {
		shinglesOf[i] = shingles(s, 3)
		filters[i] = shingleFilter(shinglesOf[i], salt)
	}

	uf := newUnionFind(n)
	windowOf := func(i int) int {
		if params.ContextWindow <= 0 {
			return n
		}
		return params.ContextWindow
	}

	for i := 0; i < n; i++ {
		window := windowOf(i)
		for j := i + 1; j < n && j-i <= window; j++ {
			if len(summaries[i]) < params.MinLengthForComparison || len(summaries[j]) < params.MinLengthForComparison {
				continue
			}
			if !shareAnyShingle(shinglesOf[i], filters[j], salt) {
				continue // proven zero shingle overlap, skip the expensive comparison
			}
			score := similarity.Jaccard(summaries[i], summaries[j])
			if params.UseSemanticSimilarity {
				score = similarity.Combined(summaries[i], summaries[j])
			}
			if score >= params.SimilarityThreshold {
				uf.union(i, j)
			}
		}
	}

	clusters := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := uf.find(i)
		clusters[root] = append(clusters[root], i)
	}

	var groups []types.DuplicateGroup
	var deduped []string
	duplicatesRemoved := 0
	for _, members := range clusters {
		rep := chooseRepresentative(members, summaries, params.PreserveLongerVersion, extractor)
		deduped = append(deduped, summaries[rep])
		if len(members) > 1 {
			groups = append(groups, types.DuplicateGroup{RepresentativeIndex: rep, MemberIndices: members})
			duplicatesRemoved += len(members) - 1
		}
	}

	result.FinalCount = len(deduped)
	result.DuplicatesRemoved = duplicatesRemoved
	result.DuplicateGroups = groups
	result.DeduplicatedSummaries = deduped
	return result
}

func chooseRepresentative(members []int, summaries []string, preserveLonger bool, extractor *topics.Extractor) int {
	best := members[0]
	if preserveLonger {
		for _, m := range members {
			if len(summaries[m]) > len(summaries[best]) {
				best = m
			}
		}
		return best
	}
	if extractor == nil {
		return best
	}
	bestKeywords := -1
	for _, m := range members {
		n := len(extractor.Keywords(summaries[m], 50))
		if n > bestKeywords {
			bestKeywords, best = n, m
		}
	}
	return best
}
