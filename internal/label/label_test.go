package label

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeProvider struct {
	response   string
	err        error
	lastPrompt string
	lastOpts   CompletionOpts
}

func (f *fakeProvider) Complete(_ context.Context, prompt string, opts CompletionOpts) (string, error) {
	f.lastPrompt = prompt
	f.lastOpts = opts
	return f.response, f.err
}

func (f *fakeProvider) Name() string { return "fake/test" }

func TestLabelCluster(t *testing.T) {
	p := &fakeProvider{response: "Family Dinners"}
	got, err := LabelCluster(context.Background(), p, ClusterSummary{
		ClusterID:       2,
		Size:            8,
		DominantEmotion: "Joy",
		SampleTexts:     []string{"cooked pasta with mom", "sunday roast at grandma's"},
	})
	if err != nil {
		t.Fatalf("LabelCluster: %v", err)
	}
	if got != "Family Dinners" {
		t.Errorf("label = %q", got)
	}
	if !strings.Contains(p.lastPrompt, "8 personal memories") {
		t.Errorf("prompt missing size: %q", p.lastPrompt)
	}
	if !strings.Contains(p.lastPrompt, "Dominant emotion: Joy") {
		t.Errorf("prompt missing emotion: %q", p.lastPrompt)
	}
	if !strings.Contains(p.lastPrompt, "cooked pasta with mom") {
		t.Errorf("prompt missing sample text: %q", p.lastPrompt)
	}
	if p.lastOpts.Temperature != 0 {
		t.Errorf("expected deterministic temperature, got %v", p.lastOpts.Temperature)
	}
}

func TestLabelClusterSanitizes(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`"Beach Trips"`, "Beach Trips"},
		{"Beach Trips.\nThese memories all involve sand.", "Beach Trips"},
		{"One Two Three Four Five Six", "One Two Three Four"},
		{"  Quiet Mornings  ", "Quiet Mornings"},
	}
	for _, tc := range cases {
		p := &fakeProvider{response: tc.raw}
		got, err := LabelCluster(context.Background(), p, ClusterSummary{ClusterID: 0, Size: 3})
		if err != nil {
			t.Fatalf("LabelCluster(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Errorf("sanitize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestLabelClusterErrors(t *testing.T) {
	p := &fakeProvider{err: errors.New("boom")}
	if _, err := LabelCluster(context.Background(), p, ClusterSummary{ClusterID: 1}); err == nil {
		t.Fatal("expected provider error to propagate")
	}

	p = &fakeProvider{response: "   "}
	if _, err := LabelCluster(context.Background(), p, ClusterSummary{ClusterID: 1}); err == nil {
		t.Fatal("expected error for empty label")
	}
}

func TestLabelClusterCapsSamples(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e", "f", "g"}
	p := &fakeProvider{response: "Many Things"}
	if _, err := LabelCluster(context.Background(), p, ClusterSummary{Size: 7, SampleTexts: texts}); err != nil {
		t.Fatalf("LabelCluster: %v", err)
	}
	if strings.Contains(p.lastPrompt, "- f\n") || strings.Contains(p.lastPrompt, "- g\n") {
		t.Errorf("prompt should cap sample texts: %q", p.lastPrompt)
	}
	if !strings.Contains(p.lastPrompt, "- e\n") {
		t.Errorf("prompt missing fifth sample: %q", p.lastPrompt)
	}
}

func TestParseFlag(t *testing.T) {
	cases := []struct {
		flag     string
		provider string
		model    string
		wantErr  bool
	}{
		{"", "google", "gemini-2.5-flash", false},
		{"google/gemini-2.5-flash", "google", "gemini-2.5-flash", false},
		{"openrouter/openai/gpt-4o-mini", "openrouter", "openai/gpt-4o-mini", false},
		{"justamodel", "", "", true},
		{"anthropic/claude", "", "", true},
	}
	for _, tc := range cases {
		cfg, err := ParseFlag(tc.flag)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseFlag(%q): expected error", tc.flag)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFlag(%q): %v", tc.flag, err)
			continue
		}
		if cfg.Provider != tc.provider || cfg.Model != tc.model {
			t.Errorf("ParseFlag(%q) = %+v", tc.flag, cfg)
		}
	}
}
