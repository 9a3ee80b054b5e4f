package identify

import (
	"context"
	"errors"
	"testing"

	"github.com/dravya-labs/dravya/pkg/enrich"
	"github.com/dravya-labs/dravya/pkg/models"
	"github.com/dravya-labs/dravya/pkg/predictor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPredictor struct {
	label string
	err   error
	calls int
}

func (p *stubPredictor) Predict(models.SensorReading) (string, error) {
	p.calls++
	return p.label, p.err
}

type stubEnricher struct {
	result    enrich.Result
	labels    []string
	answer    string
	answerErr error
	queries   []string
}

func (e *stubEnricher) Research(_ context.Context, label, query string) (string, error) {
	e.labels = append(e.labels, label)
	e.queries = append(e.queries, query)
	return e.answer, e.answerErr
}

func (e *stubEnricher) Enrich(_ context.Context, label string) enrich.Result {
	e.labels = append(e.labels, label)
	r := e.result
	r.Label = label
	return r
}

func TestIdentify(t *testing.T) {
	p := &stubPredictor{label: "Tulsi"}
	e := &stubEnricher{result: enrich.Result{Text: "desc", Image: []byte("img")}}
	svc := New(p, e, []string{"Neem", "Tulsi"}, nil)

	resp, err := svc.Identify(context.Background(), models.NewSensorInput(6.8, 310, 4, 120, 0.4, 26.5))
	require.NoError(t, err)
	assert.Equal(t, "Tulsi", resp.Dravya)
	assert.Equal(t, "desc", resp.Description)
	require.NotNil(t, resp.ImageBase64)
	assert.Equal(t, "aW1n", *resp.ImageBase64)
	assert.Equal(t, []string{"Tulsi"}, e.labels)
}

func TestIdentifyNoImage(t *testing.T) {
	svc := New(&stubPredictor{label: "Neem"}, &stubEnricher{result: enrich.Result{Text: enrich.Placeholder}}, nil, nil)

	resp, err := svc.Identify(context.Background(), models.NewSensorInput(1, 2, 3, 4, 5, 6))
	require.NoError(t, err)
	assert.Nil(t, resp.ImageBase64)
	assert.Equal(t, enrich.Placeholder, resp.Description)
}

func TestIdentifyValidationStopsPipeline(t *testing.T) {
	p := &stubPredictor{label: "Tulsi"}
	e := &stubEnricher{}
	svc := New(p, e, nil, nil)

	_, err := svc.Identify(context.Background(), models.SensorInput{})
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 6)
	assert.Equal(t, 0, p.calls)
	assert.Empty(t, e.labels)
}

func TestIdentifyPredictionError(t *testing.T) {
	p := &stubPredictor{err: errors.Join(predictor.ErrPrediction, errors.New("corrupt model"))}
	e := &stubEnricher{}
	svc := New(p, e, nil, nil)

	_, err := svc.Identify(context.Background(), models.NewSensorInput(1, 2, 3, 4, 5, 6))
	assert.True(t, errors.Is(err, predictor.ErrPrediction))
	assert.Empty(t, e.labels)
}

func TestLabelsIsCopy(t *testing.T) {
	svc := New(&stubPredictor{}, &stubEnricher{}, []string{"A", "B"}, nil)
	labels := svc.Labels()
	labels[0] = "Z"
	assert.Equal(t, []string{"A", "B"}, svc.Labels())
}

func TestSearchResolvesVocabulary(t *testing.T) {
	e := &stubEnricher{result: enrich.Result{Text: "desc"}}
	svc := New(&stubPredictor{}, e, []string{"Neem", "Tulsi"}, nil)

	resp, err := svc.Search(context.Background(), "  tulsi ")
	require.NoError(t, err)
	assert.Equal(t, "Tulsi", resp.Dravya)
	assert.Equal(t, "desc", resp.Description)
	assert.Nil(t, resp.ImageBase64)
	assert.Equal(t, []string{"Tulsi"}, e.labels)

	_, err = svc.Search(context.Background(), "Mango")
	assert.ErrorIs(t, err, ErrUnknownDravya)
	assert.Len(t, e.labels, 1, "unknown names must not be enriched")
}

func TestResearch(t *testing.T) {
	e := &stubEnricher{answer: "Cooling; avoid in pregnancy."}
	svc := New(&stubPredictor{}, e, []string{"Neem"}, nil)

	resp, err := svc.Research(context.Background(), models.ResearchQuery{Dravya: "neem", Query: " Is it safe? "})
	require.NoError(t, err)
	assert.Equal(t, "Cooling; avoid in pregnancy.", resp.Answer)
	assert.Equal(t, []string{"Neem"}, e.labels)
	assert.Equal(t, []string{"Is it safe?"}, e.queries)
}

func TestResearchFallsBackToPlaceholder(t *testing.T) {
	e := &stubEnricher{answerErr: enrich.ErrGenerationUnavailable}
	svc := New(&stubPredictor{}, e, []string{"Neem"}, nil)

	resp, err := svc.Research(context.Background(), models.ResearchQuery{Dravya: "Neem", Query: "uses?"})
	require.NoError(t, err)
	assert.Equal(t, enrich.ResearchPlaceholder, resp.Answer)
}

func TestResearchRejectsBadInput(t *testing.T) {
	e := &stubEnricher{}
	svc := New(&stubPredictor{}, e, []string{"Neem"}, nil)

	_, err := svc.Research(context.Background(), models.ResearchQuery{Dravya: "Neem", Query: "   "})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"query"}, verr.Fields)

	_, err = svc.Research(context.Background(), models.ResearchQuery{Dravya: "Mango", Query: "uses?"})
	assert.ErrorIs(t, err, ErrUnknownDravya)
	assert.Empty(t, e.queries)
}
