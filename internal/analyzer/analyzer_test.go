package analyzer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"wavemood/internal/decoder"
	"wavemood/internal/features"
	"wavemood/internal/model"
	"wavemood/internal/types"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRate = 8000

func writeWAV(t *testing.T, name string, samples []float32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, decoder.WriteMonoWAV(path, samples, sampleRate))
	return path
}

func sine(seconds float64, freq float64, amp float32) []float32 {
	out := make([]float32, int(seconds*sampleRate))
	for i := range out {
		out[i] = amp * float32(math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return out
}

func newTestAnalyzer(t *testing.T, cfg *types.AnalyzerConfig) *Analyzer {
	t.Helper()
	logger, _ := test.NewNullLogger()
	a := NewAnalyzer(cfg, model.NewRegistry(t.TempDir(), logger), logger, nil)
	a.SetOutput(&bytes.Buffer{})
	return a
}

func TestAnalyzeSilentFile(t *testing.T) {
	path := writeWAV(t, "silence.wav", make([]float32, 3*sampleRate))
	a := newTestAnalyzer(t, nil)

	result := a.Analyze(context.Background(), path, model.Heuristic)
	require.True(t, result.OK, result.Error)
	assert.Empty(t, result.Error)
	assert.Equal(t, "WAV", result.Format)
	assert.InDelta(t, 3.0, result.Duration, 1e-9)
	assert.False(t, result.Fallback)

	require.Len(t, result.Timeline, 6)
	for i, w := range result.Timeline {
		assert.InDelta(t, float64(i)*0.5, w.Start, 1e-9)
		assert.Equal(t, "neutral", w.Label)
		assert.LessOrEqual(t, w.End, 3.0)
	}
	assert.InDelta(t, 3.0, result.Timeline[5].End, 1e-9)

	require.Len(t, result.Summary, 1)
	neutral := result.Summary["neutral"]
	assert.InDelta(t, 3.0, neutral.DurationS, 1e-9)
	assert.InDelta(t, 100.0, neutral.Pct, 1e-9)
	require.NotNil(t, neutral.AvgProb)
	assert.Equal(t, 1.0, *neutral.AvgProb)

	top, ok := TopLabel(result.Summary)
	assert.True(t, ok)
	assert.Equal(t, "neutral", top)
}

func TestAnalyzeLoudToneIsExcited(t *testing.T) {
	path := writeWAV(t, "tone.wav", sine(2, 220, 0.5))
	a := newTestAnalyzer(t, nil)

	result := a.Analyze(context.Background(), path, model.Heuristic)
	require.True(t, result.OK)
	for _, w := range result.Timeline {
		assert.Equal(t, "excited", w.Label)
		assert.InDelta(t, 220, w.Features[features.F0Mean], 15)
	}
}

func TestAnalyzeUndecodableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o644))
	a := newTestAnalyzer(t, nil)

	result := a.Analyze(context.Background(), path, model.Heuristic)
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Error)
	assert.NotNil(t, result.Timeline)
	assert.Empty(t, result.Timeline)
	assert.Empty(t, result.Summary)
}

func TestAnalyzeCanceled(t *testing.T) {
	path := writeWAV(t, "tone.wav", sine(1, 220, 0.2))
	a := newTestAnalyzer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := a.Analyze(ctx, path, model.Heuristic)
	assert.False(t, result.OK)
	assert.Equal(t, "canceled", result.Error)
	assert.Empty(t, result.Timeline)
}

func TestAnalyzeMissingModelFallsBack(t *testing.T) {
	path := writeWAV(t, "tone.wav", sine(1, 220, 0.2))
	a := newTestAnalyzer(t, nil)

	result := a.Analyze(context.Background(), path, model.MLP)
	require.True(t, result.OK)
	assert.True(t, result.Fallback)
	assert.Equal(t, "heuristic", result.Model)
}

type failingModel struct{ panics bool }

func (failingModel) Kind() model.Kind { return model.MLP }

func (f failingModel) Predict(features.Vector) (model.Prediction, error) {
	if f.panics {
		panic("shape mismatch")
	}
	return model.Prediction{}, errors.New("bad input")
}

func TestModelFailureBecomesErrorLabel(t *testing.T) {
	for _, m := range []model.Model{failingModel{}, failingModel{panics: true}} {
		pred := predict(m, features.Vector{})
		assert.Equal(t, "error", pred.Label)
		assert.Equal(t, map[string]float64{"error": 1.0}, pred.Probs)
	}

	a := newTestAnalyzer(t, nil)
	timeline, err := a.scan(context.Background(), make([]float64, 2*sampleRate), sampleRate, failingModel{})
	require.NoError(t, err)
	summary := Summarize(timeline, 2)
	require.Contains(t, summary, "error")
	assert.InDelta(t, 2.0, summary["error"].DurationS, 1e-9)
}

func TestSummarizeCreditsNonOverlappingSpans(t *testing.T) {
	calm := map[string]float64{"calm": 0.6, "excited": 0.4}
	excited := map[string]float64{"calm": 0.2, "excited": 0.8}
	timeline := []types.AnalysisWindow{
		{Start: 0.0, End: 1.0, Label: "calm", Probs: calm},
		{Start: 0.5, End: 1.5, Label: "calm", Probs: calm},
		{Start: 1.0, End: 2.0, Label: "excited", Probs: excited},
		{Start: 1.5, End: 2.2, Label: "excited", Probs: excited},
		{Start: 2.0, End: 2.2, Label: "knn", Probs: nil},
	}

	summary := Summarize(timeline, 2.2)
	total := 0.0
	for _, s := range summary {
		total += s.DurationS
	}
	assert.InDelta(t, 2.2, total, 1e-9)

	assert.InDelta(t, 1.0, summary["calm"].DurationS, 1e-9)
	assert.InDelta(t, 1.0, summary["excited"].DurationS, 1e-9)
	assert.InDelta(t, 45.45, summary["calm"].Pct, 1e-9)
	require.NotNil(t, summary["calm"].AvgProb)
	assert.InDelta(t, 0.4, *summary["calm"].AvgProb, 1e-9)
	assert.InDelta(t, 0.6, *summary["excited"].AvgProb, 1e-9)
	assert.Nil(t, summary["knn"].AvgProb)
	assert.InDelta(t, 0.2, summary["knn"].DurationS, 1e-9)
}

func TestSummarizeZeroTotal(t *testing.T) {
	summary := Summarize([]types.AnalysisWindow{{Label: "neutral"}}, 0)
	assert.Equal(t, 0.0, summary["neutral"].Pct)
	assert.Empty(t, Summarize(nil, 1))
}

func TestTopLabel(t *testing.T) {
	_, ok := TopLabel(nil)
	assert.False(t, ok)

	top, ok := TopLabel(map[string]types.LabelSummary{
		"calm":    {DurationS: 1},
		"excited": {DurationS: 2},
		"neutral": {DurationS: 2},
	})
	assert.True(t, ok)
	assert.Equal(t, "excited", top)
}

func TestAnalyzeFilesJSON(t *testing.T) {
	good := writeWAV(t, "good.wav", make([]float32, sampleRate))
	bad := filepath.Join(t.TempDir(), "bad.flac")
	require.NoError(t, os.WriteFile(bad, []byte("junk"), 0o644))

	cfg := types.DefaultAnalyzerConfig()
	cfg.JSONOutput = true
	cfg.Concurrency = 2
	a := newTestAnalyzer(t, cfg)
	var out bytes.Buffer
	a.SetOutput(&out)

	results, err := a.AnalyzeFiles(context.Background(), []string{good, bad}, model.Heuristic)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)

	seen := map[string]bool{}
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
		seen[decoded["filePath"].(string)] = decoded["ok"].(bool)
		assert.Contains(t, decoded, "timeline")
		assert.Contains(t, decoded, "summary")
	}
	assert.Equal(t, map[string]bool{good: true, bad: false}, seen)
}

func TestAnalyzeFilesQuiet(t *testing.T) {
	good := writeWAV(t, "good.wav", make([]float32, sampleRate))

	cfg := types.DefaultAnalyzerConfig()
	cfg.Quiet = true
	a := newTestAnalyzer(t, cfg)
	var out bytes.Buffer
	a.SetOutput(&out)

	_, err := a.AnalyzeFiles(context.Background(), []string{good}, model.Heuristic)
	require.NoError(t, err)
	assert.Equal(t, good+"\tneutral\n", out.String())
}

func TestWaveform(t *testing.T) {
	samples := []float32{0, 0.5, -0.9, 0.1, 0.2, -0.1, 0.3, 0}
	path := writeWAV(t, "short.wav", samples)
	a := newTestAnalyzer(t, nil)

	wf, err := a.Waveform(path, 0)
	require.NoError(t, err)
	assert.Len(t, wf.Samples, len(samples))
	require.Len(t, wf.TimePoints, len(samples))
	assert.Equal(t, 0.0, wf.TimePoints[0])
	assert.InDelta(t, float64(len(samples))/sampleRate, wf.TimePoints[len(samples)-1], 1e-12)
	assert.Equal(t, sampleRate, wf.SampleRate)

	wf, err = a.Waveform(path, 2)
	require.NoError(t, err)
	require.Len(t, wf.Samples, 2)
	assert.InDelta(t, -0.9, wf.Samples[0], 1e-3)
	assert.InDelta(t, 0.3, wf.Samples[1], 1e-3)

	_, err = a.Waveform(filepath.Join(t.TempDir(), "missing.wav"), 0)
	assert.True(t, types.IsKind(err, types.IOError))
}
