package risk

import (
	"math"
	"testing"
)

func TestClassify_SampleRecords(t *testing.T) {
	tests := []struct {
		score float64
		label Label
		tier  Tier
	}{
		{0.89, High, TierRed},
		{0.45, Medium, TierYellow},
		{0.12, Low, TierGreen},
	}
	for _, tt := range tests {
		got := Classify(tt.score)
		if got.Label != tt.label || got.Tier != tt.tier {
			t.Errorf("Classify(%v) = {%s %s}, want {%s %s}", tt.score, got.Label, got.Tier, tt.label, tt.tier)
		}
	}
}

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  Label
	}{
		{0, Low},
		{0.30, Low},
		{0.3000001, Medium},
		{0.70, Medium},
		{0.7000001, High},
		{1, High},
	}
	for _, tt := range tests {
		if got := LabelFor(tt.score); got != tt.want {
			t.Errorf("LabelFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestClassify_ClampsOutOfRange(t *testing.T) {
	if c := Classify(1.7); c.Score != 1 || c.Label != High {
		t.Errorf("Classify(1.7) = %+v, want clamped High", c)
	}
	if c := Classify(-0.2); c.Score != 0 || c.Label != Low {
		t.Errorf("Classify(-0.2) = %+v, want clamped Low", c)
	}
	if c := Classify(math.NaN()); c.Score != 0 || c.Label != Low {
		t.Errorf("Classify(NaN) = %+v, want Low", c)
	}
}

func TestClassify_AlwaysOneOfThree(t *testing.T) {
	for i := -10; i <= 110; i++ {
		s := float64(i) / 100
		c := Classify(s)
		if _, ok := ParseLabel(string(c.Label)); !ok {
			t.Fatalf("Classify(%v) produced unknown label %q", s, c.Label)
		}
		if TierFor(c.Label) != c.Tier {
			t.Fatalf("Classify(%v) tier %s does not match label %s", s, c.Tier, c.Label)
		}
	}
}

func TestClassification_Percent(t *testing.T) {
	if got := Classify(0.89).Percent(); got != "89.0%" {
		t.Errorf("expected 89.0%%, got %s", got)
	}
	if got := Classify(0.125).Percent(); got != "12.5%" {
		t.Errorf("expected 12.5%%, got %s", got)
	}
}

func TestParseLabel(t *testing.T) {
	if l, ok := ParseLabel("Moyen"); !ok || l != Medium {
		t.Errorf("ParseLabel(Moyen) = %q, %v", l, ok)
	}
	if _, ok := ParseLabel(""); ok {
		t.Error("empty string must not parse as a label")
	}
	if _, ok := ParseLabel("eleve"); ok {
		t.Error("labels are matched exactly")
	}
}

func TestColorTag(t *testing.T) {
	if ColorTag(High) != "#ef4444" || ColorTag(Medium) != "#f59e0b" || ColorTag(Low) != "#10b981" {
		t.Error("unexpected chart colours")
	}
}
