package sentiment

import (
	"context"
	"log/slog"
)

type Label string

const (
	LabelPositive Label = "POSITIVE"
	LabelNegative Label = "NEGATIVE"
	LabelNeutral  Label = "NEUTRAL"
	LabelMixed    Label = "MIXED"
)

func (l Label) Valid() bool {
	switch l {
	case LabelPositive, LabelNegative, LabelNeutral, LabelMixed:
		return true
	default:
		return false
	}
}

type Scores struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Mixed    float64 `json:"mixed"`
}

func (s Scores) Map() map[string]float64 {
	return map[string]float64{
		string(LabelPositive): s.Positive,
		string(LabelNegative): s.Negative,
		string(LabelNeutral):  s.Neutral,
		string(LabelMixed):    s.Mixed,
	}
}

type Result struct {
	Label  Label  `json:"label"`
	Scores Scores `json:"scores"`
}

type Classifier interface {
	Classify(ctx context.Context, text, languageCode string) (Result, error)
}

const DefaultAlertThreshold = 0.9

type AlertPolicy struct {
	Threshold float64
}

// IsAlertable reports whether r is negative with a score strictly above the threshold.
func (p AlertPolicy) IsAlertable(r Result) bool {
	return r.Label == LabelNegative && r.Scores.Negative > p.Threshold
}

// Monitor classifies transcript text for alerting. Classification is advisory, so failures are
// logged and reported through ok=false instead of an error.
type Monitor struct {
	classifier   Classifier
	policy       AlertPolicy
	languageCode string
}

func NewMonitor(classifier Classifier, policy AlertPolicy, languageCode string) *Monitor {
	return &Monitor{classifier: classifier, policy: policy, languageCode: languageCode}
}

func (m *Monitor) Evaluate(ctx context.Context, text string) (result Result, alert bool, ok bool) {
	result, err := m.classifier.Classify(ctx, text, m.languageCode)
	if err != nil {
		slog.Warn("sentiment classification failed; skipping", "error", err, "language_code", m.languageCode)
		return Result{}, false, false
	}
	return result, m.policy.IsAlertable(result), true
}
