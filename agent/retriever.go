package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultReferenceK is how many reference documents are requested.
	DefaultReferenceK = 6
	// DefaultReferenceChars caps the reference text handed to the rewriter.
	DefaultReferenceChars = 9000
)

// ReferenceRetriever fetches reference documents for a question. It is
// optional: any failure yields no references.
type ReferenceRetriever struct {
	searcher ReferenceSearcher
	log      *slog.Logger
	k        int
	maxChars int
	timeout  time.Duration
}

// NewReferenceRetriever creates a retriever. searcher may be nil.
func NewReferenceRetriever(searcher ReferenceSearcher, log *slog.Logger, k, maxChars int, timeout time.Duration) *ReferenceRetriever {
	if log == nil {
		log = slog.Default()
	}
	if k <= 0 {
		k = DefaultReferenceK
	}
	if maxChars <= 0 {
		maxChars = DefaultReferenceChars
	}
	return &ReferenceRetriever{searcher: searcher, log: log, k: k, maxChars: maxChars, timeout: timeout}
}

// Retrieve returns the hits and the compact text built from them.
func (r *ReferenceRetriever) Retrieve(ctx context.Context, question string) ([]Reference, string) {
	if r == nil || r.searcher == nil {
		return nil, ""
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	refs, err := r.search(ctx, question)
	if err != nil {
		r.log.Warn("reference search unavailable", "error", err)
		return nil, ""
	}
	if len(refs) > r.k {
		refs = refs[:r.k]
	}
	return refs, BuildReferenceText(refs, r.maxChars)
}

func (r *ReferenceRetriever) search(ctx context.Context, question string) (refs []Reference, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reference search panic: %v", p)
		}
	}()
	return r.searcher.Search(ctx, question, r.k)
}

// BuildReferenceText joins reference blocks, stopping before the text
// would exceed maxChars.
func BuildReferenceText(refs []Reference, maxChars int) string {
	var sb strings.Builder
	for _, ref := range refs {
		block := fmt.Sprintf("# %s\n[type=%s] score=%.3f\n%s\n", ref.Title, ref.Type, ref.Score, strings.TrimSpace(ref.Text))
		sep := ""
		if sb.Len() > 0 {
			sep = "\n---\n"
		}
		if sb.Len()+len(sep)+len(block) > maxChars {
			break
		}
		sb.WriteString(sep)
		sb.WriteString(block)
	}
	return sb.String()
}
