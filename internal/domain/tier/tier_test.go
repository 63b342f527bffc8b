package tier

import "testing"

func TestWithinBudget(t *testing.T) {
	tests := []struct {
		tier    Tier
		ceiling Tier
		want    bool
	}{
		{Local, Local, true},
		{Local, Smart, true},
		{Cheap, Cheap, true},
		{Cheap, Local, false},
		{Smart, Cheap, false},
		{Smart, Smart, true},
	}
	for _, tt := range tests {
		if got := tt.tier.WithinBudget(tt.ceiling); got != tt.want {
			t.Errorf("%s.WithinBudget(%s) = %v, want %v", tt.tier, tt.ceiling, got, tt.want)
		}
	}
}

func TestStepDown(t *testing.T) {
	if next, ok := Smart.StepDown(); !ok || next != Cheap {
		t.Errorf("Smart.StepDown() = %s, %v", next, ok)
	}
	if next, ok := Cheap.StepDown(); !ok || next != Local {
		t.Errorf("Cheap.StepDown() = %s, %v", next, ok)
	}
	if _, ok := Local.StepDown(); ok {
		t.Error("Local.StepDown() should have no fallback")
	}
}

func TestParse(t *testing.T) {
	if _, err := Parse("SMART"); err != nil {
		t.Errorf("Parse(SMART): %v", err)
	}
	if _, err := Parse("smart"); err == nil {
		t.Error("Parse(smart) should fail, tiers are uppercase")
	}
	if _, err := Parse(""); err == nil {
		t.Error("Parse(empty) should fail")
	}
}
