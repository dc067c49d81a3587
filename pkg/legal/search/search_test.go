package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"legal-assistant-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	resp  Response
	err   error
	calls int
}

func (s *stubSearcher) Search(ctx context.Context, query, jurisdiction string, topK int) (Response, error) {
	s.calls++
	return s.resp, s.err
}

func results(scores ...float64) []Result {
	out := make([]Result, len(scores))
	for i, s := range scores {
		out[i] = Result{Citation: "Act", Score: s}
	}
	return out
}

func TestTier(t *testing.T) {
	assert.Equal(t, ConfidenceNone, Tier(nil))
	assert.Equal(t, ConfidenceHigh, Tier(results(0.2, 0.82)))
	assert.Equal(t, ConfidenceMedium, Tier(results(0.55)))
	assert.Equal(t, ConfidenceLow, Tier(results(0.31)))
}

func TestFallback(t *testing.T) {
	caseLaw := Response{Results: []Result{{Citation: "[2020] NSWCATAP 138", Source: SourceCaseLaw}}, Confidence: ConfidenceWeb}

	tests := []struct {
		name          string
		primary       *stubSearcher
		secondary     *stubSearcher
		wantSource    string
		wantSecondary bool
		wantErr       bool
	}{
		{
			name:       "confident primary",
			primary:    &stubSearcher{resp: Response{Results: results(0.8), Confidence: ConfidenceHigh}},
			secondary:  &stubSearcher{resp: caseLaw},
			wantSource: "",
		},
		{
			name:          "low confidence",
			primary:       &stubSearcher{resp: Response{Results: results(0.31), Confidence: ConfidenceLow}},
			secondary:     &stubSearcher{resp: caseLaw},
			wantSource:    SourceCaseLaw,
			wantSecondary: true,
		},
		{
			name:          "empty primary",
			primary:       &stubSearcher{resp: Response{Confidence: ConfidenceNone}},
			secondary:     &stubSearcher{resp: caseLaw},
			wantSource:    SourceCaseLaw,
			wantSecondary: true,
		},
		{
			name:          "primary error",
			primary:       &stubSearcher{err: errors.New("db down")},
			secondary:     &stubSearcher{resp: caseLaw},
			wantSource:    SourceCaseLaw,
			wantSecondary: true,
		},
		{
			name:          "both fail",
			primary:       &stubSearcher{err: errors.New("db down")},
			secondary:     &stubSearcher{err: errors.New("timeout")},
			wantSecondary: true,
			wantErr:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFallback(tt.primary, tt.secondary, logger.NewNopLogger())
			resp, err := f.Search(context.Background(), "retaliatory eviction", "NSW", 5)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, resp.Results)
			assert.Equal(t, tt.wantSource, resp.Results[0].Source)
			assert.Equal(t, tt.wantSecondary, tt.secondary.calls == 1)
		})
	}
}

func TestCachedSearcher(t *testing.T) {
	next := &stubSearcher{resp: Response{Results: results(0.9), Confidence: ConfidenceHigh}}
	c, err := NewCachedSearcher(next, 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := c.Search(context.Background(), "Bond refund ", "NSW", 5)
		require.NoError(t, err)
	}
	_, _ = c.Search(context.Background(), "bond refund", "NSW", 5)
	assert.Equal(t, 1, next.calls)

	next.err = errors.New("boom")
	_, err = c.Search(context.Background(), "other", "NSW", 5)
	assert.Error(t, err)
	assert.Equal(t, 1, c.Len())
}

type fakeEmbedder struct{}

func (fakeEmbedder) Generate(ctx context.Context, text, taskType string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fakeIndex struct {
	gotJurisdiction string
	chunks          []Chunk
}

func (f *fakeIndex) SearchSimilar(ctx context.Context, vec []float32, jurisdiction string, limit int, threshold float64) ([]Chunk, error) {
	f.gotJurisdiction = jurisdiction
	return f.chunks, nil
}

func TestVectorSearcherDedupesAndFallsBackToFederal(t *testing.T) {
	idx := &fakeIndex{chunks: []Chunk{
		{DocumentID: "rta", Citation: "Residential Tenancies Act s 41", Similarity: 0.81},
		{DocumentID: "rta", Citation: "Residential Tenancies Act s 42", Similarity: 0.78},
		{DocumentID: "acl", Citation: "Australian Consumer Law s 54", Similarity: 0.52},
	}}
	s := NewVectorSearcher(fakeEmbedder{}, idx)

	resp, err := s.Search(context.Background(), "rent increase notice", "VIC", 5)
	require.NoError(t, err)
	assert.Equal(t, "FEDERAL", idx.gotJurisdiction)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, ConfidenceHigh, resp.Confidence)
	assert.Contains(t, resp.Note, "VIC legislation is not yet available")

	_, err = s.Search(context.Background(), "rent increase notice", "NSW", 5)
	require.NoError(t, err)
	assert.Equal(t, "NSW", idx.gotJurisdiction)
}

const austliiPage = `<html><body><ol>
<li data-count="1" class="multi"><a href="/cgi-bin/viewdoc/au/cases/nsw/NSWCATAP/2020/138.html">Commissioner for Fair Trading v Rixon [2020] NSWCATAP 138</a>
<p class="meta"><a href="/au/cases/nsw/NSWCATAP/">NSW Civil and Administrative Tribunal Appeal Panel</a> <span class="break">12 June 2020</span> <a href="/lawcite">LawCite</a></p></li>
<li data-count="2" class="multi"><a href="https://www.austlii.edu.au/x.html">Untitled decision</a></li>
<li class="other"><a href="/ignored">Ignored</a></li>
</ol></body></html>`

func TestCaseLawSearcherParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "au/cases/nsw", r.URL.Query().Get("mask_path"))
		_, _ = w.Write([]byte(austliiPage))
	}))
	defer srv.Close()

	s := NewCaseLawSearcher()
	s.BaseURL = srv.URL
	resp, err := s.Search(context.Background(), "retaliatory eviction", "NSW", 5)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	first := resp.Results[0]
	assert.Equal(t, "[2020] NSWCATAP 138", first.Citation)
	assert.Equal(t, srv.URL+"/cgi-bin/viewdoc/au/cases/nsw/NSWCATAP/2020/138.html", first.SourceURL)
	assert.Contains(t, first.Content, "Court: NSW Civil and Administrative Tribunal Appeal Panel")
	assert.Contains(t, first.Content, "Date: 12 June 2020")
	assert.Equal(t, SourceCaseLaw, first.Source)

	assert.Equal(t, "Untitled decision", resp.Results[1].Citation)
	assert.Equal(t, ConfidenceWeb, resp.Confidence)
}

func TestCaseLawSearcherHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewCaseLawSearcher()
	s.BaseURL = srv.URL
	_, err := s.Search(context.Background(), "x", "NSW", 5)
	assert.Error(t, err)
}
