package model

import "testing"

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"short-term", TierShortTerm, false},
		{"LONG_TERM", TierLongTerm, false},
		{" episodic ", TierEpisodic, false},
		{"semantic", TierSemantic, false},
		{"working", TierWorking, false},
		{"archive", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTier(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTier(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTier(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWorkingIsNotPrimary(t *testing.T) {
	if TierWorking.IsPrimary() {
		t.Error("working overlay must not count as a primary tier")
	}
	for _, tier := range PrimaryTiers {
		if !tier.IsPrimary() {
			t.Errorf("%s should be primary", tier)
		}
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" b", "a", "", "b", "c "})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	m := Memory{Tags: []string{"x"}, MergedFrom: []string{"a", "b"}}
	c := m.Clone()
	c.Tags[0] = "y"
	c.MergedFrom[0] = "z"
	if m.Tags[0] != "x" || m.MergedFrom[0] != "a" {
		t.Error("clone shares backing arrays with the original")
	}
}
