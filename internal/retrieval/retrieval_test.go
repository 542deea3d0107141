package retrieval

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
)

// #region mock
type mockSearcher struct {
	hits    []Hit
	err     error
	lastReq SearchRequest
}

func (m *mockSearcher) Search(_ context.Context, req SearchRequest) ([]Hit, error) {
	m.lastReq = req
	return m.hits, m.err
}

// #endregion mock

// #region gate1-tests
func TestRank_NoSearcher(t *testing.T) {
	r := NewRanker(nil, DefaultConfig(), nil)
	result := r.Rank(context.Background(), bucket.Knee, "knee pain stairs")
	if result.Gate1Passed {
		t.Error("expected gate1 to fail without a searcher")
	}
	if len(result.Ranking) != 0 {
		t.Errorf("expected empty ranking, got %v", result.Ranking)
	}
}

func TestRank_EmptyQuery(t *testing.T) {
	m := &mockSearcher{}
	r := NewRanker(m, DefaultConfig(), nil)
	result := r.Rank(context.Background(), bucket.Knee, "   ")
	if result.Gate1Passed {
		t.Error("expected gate1 to fail for empty query")
	}
	if result.Reason != "gate1: empty query" {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
}

// #endregion gate1-tests

// #region degrade-tests
func TestRank_SearchErrorDegrades(t *testing.T) {
	m := &mockSearcher{err: errors.New("search broken")}
	r := NewRanker(m, DefaultConfig(), nil)

	result := r.Rank(context.Background(), bucket.Knee, "knee")
	if !result.Degraded {
		t.Error("expected degraded result")
	}
	if len(result.Ranking) != 0 {
		t.Errorf("expected empty ranking, got %v", result.Ranking)
	}
}

func TestRank_PassesConfigToSearcher(t *testing.T) {
	m := &mockSearcher{}
	cfg := DefaultConfig()
	cfg.TopK = 7
	r := NewRanker(m, cfg, nil)

	r.Rank(context.Background(), bucket.Shoulder, "night pain")
	if m.lastReq.TopK != 7 || m.lastReq.Category != bucket.Shoulder || m.lastReq.MinScore != 0.35 {
		t.Errorf("unexpected request: %+v", m.lastReq)
	}
}

// #endregion degrade-tests

// #region gate2-tests
func TestRank_Gate2DropsLowScores(t *testing.T) {
	m := &mockSearcher{hits: []Hit{
		{ID: "a", Text: "evidence a", Score: 0.2, Buckets: "OA"},
		{ID: "b", Text: "evidence b", Score: 0.34, Buckets: "OVR"},
	}}
	r := NewRanker(m, DefaultConfig(), nil)

	result := r.Rank(context.Background(), bucket.Knee, "knee")
	if result.Gate2Count != 0 {
		t.Errorf("expected 0 gate2 results, got %d", result.Gate2Count)
	}
	if result.Reason != "gate2: no results above similarity threshold" {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
}

// #endregion gate2-tests

// #region gate3-tests
func TestConsistencyCheck_FiltersEmpty(t *testing.T) {
	r := &Ranker{config: DefaultConfig()}
	valid := r.consistencyCheck([]Hit{
		{ID: "1", Text: "valid evidence", Score: 0.9},
		{ID: "2", Text: "", Score: 0.8},
		{ID: "", Text: "no id", Score: 0.8},
	})
	if len(valid) != 1 {
		t.Fatalf("expected 1 valid result, got %d", len(valid))
	}
	if valid[0].ID != "1" {
		t.Errorf("expected ID=1, got %s", valid[0].ID)
	}
}

func TestConsistencyCheck_FiltersOverlong(t *testing.T) {
	r := &Ranker{config: Config{MaxEvidenceLen: 10}}
	valid := r.consistencyCheck([]Hit{
		{ID: "1", Text: "short", Score: 0.9},
		{ID: "2", Text: "this text is way too long for the limit", Score: 0.8},
	})
	if len(valid) != 1 {
		t.Errorf("expected 1 valid result, got %d", len(valid))
	}
}

func TestConsistencyCheck_FiltersDuplicateIDs(t *testing.T) {
	r := &Ranker{config: DefaultConfig()}
	valid := r.consistencyCheck([]Hit{
		{ID: "dup", Text: "first", Score: 0.9},
		{ID: "dup", Text: "second", Score: 0.8},
		{ID: "unique", Text: "third", Score: 0.7},
	})
	if len(valid) != 2 {
		t.Fatalf("expected 2 valid results, got %d", len(valid))
	}
	if valid[0].Text != "first" {
		t.Errorf("expected first occurrence, got %s", valid[0].Text)
	}
}

func TestConsistencyCheck_ClassifiesSource(t *testing.T) {
	r := &Ranker{config: DefaultConfig()}
	valid := r.consistencyCheck([]Hit{
		{ID: "1", Text: "x", Source: "pubmed"},
		{ID: "2", Text: "x", Source: "orthobullets"},
		{ID: "3", Text: "x", Source: "blog"},
	})
	layers := []int{valid[0].Layer, valid[1].Layer, valid[2].Layer}
	if !reflect.DeepEqual(layers, []int{3, 2, 1}) {
		t.Errorf("unexpected layers: %v", layers)
	}
	if valid[2].Source != "verified_paper" {
		t.Errorf("expected unknown source to map to verified_paper, got %q", valid[2].Source)
	}
}

// #endregion gate3-tests

// #region ranking-tests
func TestRank_FullSuccess(t *testing.T) {
	m := &mockSearcher{hits: []Hit{
		{ID: "a", Text: "meniscus tear after twisting", Score: 0.6, Buckets: "TRM"},
		{ID: "b", Text: "overuse in runners", Score: 0.9, Buckets: "OVR, TRM"},
		{ID: "c", Text: "cartilage wear", Score: 0.5, Buckets: "OA,research"},
		{ID: "d", Text: "patellar tendinopathy", Score: 0.8, Buckets: "ovr,XYZ"},
	}}
	r := NewRanker(m, DefaultConfig(), nil)

	result := r.Rank(context.Background(), bucket.Knee, "knee twisting")
	if !result.Gate1Passed || result.Gate2Count != 4 || result.Gate3Count != 4 {
		t.Fatalf("unexpected gate counts: %+v", result)
	}
	if result.Retrieved[0].ID != "b" {
		t.Errorf("expected retrieved sorted by score, got first %s", result.Retrieved[0].ID)
	}
	want := bucket.RankedList{bucket.OVR, bucket.TRM, bucket.OA}
	if !reflect.DeepEqual(result.Ranking, want) {
		t.Errorf("ranking = %v, want %v", result.Ranking, want)
	}
}

func TestRankByTags_TiesKeepFirstAppearance(t *testing.T) {
	got := RankByTags([]Evidence{
		{Tags: []bucket.Code{bucket.INF}},
		{Tags: []bucket.Code{bucket.OA}},
	})
	want := bucket.RankedList{bucket.INF, bucket.OA}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseTags(t *testing.T) {
	got := ParseTags(" OA, trm ,research,,OA,bogus")
	want := []bucket.Code{bucket.OA, bucket.TRM}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if len(ParseTags("")) != 0 {
		t.Error("expected no tags for empty input")
	}
}

// #endregion ranking-tests

// #region query-tests
func TestBuildQuery(t *testing.T) {
	got := BuildQuery(bucket.Knee, []string{"pain_stairs", "age_gte_60", "swelling"}, "It hurts when I climb the stairs")
	want := "knee pain stairs swelling hurts climb"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMemorySearcher(t *testing.T) {
	m := NewMemorySearcher()
	m.Add(bucket.Knee, Hit{ID: "1", Title: "Stair climbing pain", Text: "degenerative knee", Buckets: "OA"})
	m.Add(bucket.Knee, Hit{ID: "2", Title: "Running injuries", Text: "overuse knee", Buckets: "OVR"})
	m.Add(bucket.Shoulder, Hit{ID: "3", Title: "Stair pain", Text: "knee", Buckets: "OA"})

	hits, err := m.Search(context.Background(), SearchRequest{Category: bucket.Knee, Query: "knee stair pain", TopK: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "1" || hits[0].Score != 1 {
		t.Errorf("expected doc 1 with full overlap first, got %+v", hits[0])
	}

	hits, _ = m.Search(context.Background(), SearchRequest{Category: bucket.Knee, Query: "knee stair pain", MinScore: 0.5})
	if len(hits) != 1 {
		t.Errorf("expected MinScore to drop partial match, got %d hits", len(hits))
	}
}

// #endregion query-tests
