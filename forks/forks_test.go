package forks

import "testing"

func TestLadderActivationBoundaries(t *testing.T) {
	l := New(100, 200, 300, 400, 500, 600)

	cases := []struct {
		name   string
		active func(int32) bool
		height int32
	}{
		{"bip34", l.IsBIP34Active, 100},
		{"bip65", l.IsBIP65Active, 200},
		{"bip66", l.IsBIP66Active, 300},
		{"csv", l.IsCSVActive, 400},
		{"uahf", l.IsUAHFActive, 500},
		{"daa", l.IsDAAActive, 600},
	}

	for _, c := range cases {
		if c.active(c.height - 1) {
			t.Errorf("%s: active one block below its activation height", c.name)
		}
		if !c.active(c.height) {
			t.Errorf("%s: not active exactly at its activation height", c.name)
		}
		if !c.active(c.height + 1) {
			t.Errorf("%s: not active one block above its activation height", c.name)
		}
	}
}

func TestIsCashActiveAliasesUAHF(t *testing.T) {
	l := New(0, 0, 0, 0, 500, 0)
	for _, h := range []int32{0, 499, 500, 501, 1000000} {
		if l.IsCashActive(h) != l.IsUAHFActive(h) {
			t.Errorf("IsCashActive(%d) diverges from IsUAHFActive(%d)", h, h)
		}
	}
}

func TestLadderActivatesAtGenesisWhenHeightIsZero(t *testing.T) {
	l := New(0, 0, 0, 0, 0, 0)
	if !l.IsBIP34Active(0) || !l.IsUAHFActive(0) || !l.IsDAAActive(0) {
		t.Fatal("a zero activation height must already be active at genesis")
	}
}
