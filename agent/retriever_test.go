package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildReferenceText(t *testing.T) {
	refs := []Reference{
		{Title: "VIP", Type: "glossary", Text: " VipLV is 0-9 ", Score: 0.9},
		{Title: "Dates", Type: "note", Text: "LoginDate is YYYYMMDD", Score: 0.75},
	}
	got := BuildReferenceText(refs, DefaultReferenceChars)
	assert.Equal(t, "# VIP\n[type=glossary] score=0.900\nVipLV is 0-9\n\n---\n# Dates\n[type=note] score=0.750\nLoginDate is YYYYMMDD\n", got)
}

func TestBuildReferenceTextRespectsBudget(t *testing.T) {
	long := strings.Repeat("x", 400)
	refs := []Reference{{Title: "a", Text: long}, {Title: "b", Text: long}, {Title: "c", Text: long}}

	got := BuildReferenceText(refs, 900)
	assert.LessOrEqual(t, len(got), 900)
	assert.Contains(t, got, "# a\n")
	assert.Contains(t, got, "# b\n")
	assert.NotContains(t, got, "# c\n")

	assert.Equal(t, "", BuildReferenceText(refs, 10))
}

func TestRetrieveLimitsToK(t *testing.T) {
	var refs []Reference
	for i := 0; i < 10; i++ {
		refs = append(refs, Reference{Title: string(rune('a' + i))})
	}
	r := NewReferenceRetriever(overeagerSearcher{refs: refs}, testLog, 0, 0, time.Second)

	hits, text := r.Retrieve(context.Background(), "q")
	assert.Len(t, hits, DefaultReferenceK)
	assert.NotEmpty(t, text)
}

type overeagerSearcher struct{ refs []Reference }

func (o overeagerSearcher) Search(context.Context, string, int) ([]Reference, error) {
	return o.refs, nil
}

func TestRetrieveDegrades(t *testing.T) {
	for name, s := range map[string]ReferenceSearcher{
		"error": staticSearcher{err: errors.New("index missing")},
		"panic": staticSearcher{panic: true},
		"nil":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			hits, text := NewReferenceRetriever(s, testLog, 6, 9000, time.Second).Retrieve(context.Background(), "q")
			assert.Nil(t, hits)
			assert.Equal(t, "", text)
		})
	}

	var nilRetriever *ReferenceRetriever
	hits, text := nilRetriever.Retrieve(context.Background(), "q")
	assert.Nil(t, hits)
	assert.Equal(t, "", text)
}
