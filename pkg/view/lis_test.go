package view

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLongestIncreasing(t *testing.T) {
	tests := []struct {
		name string
		seq  []int
		want []bool
	}{
		{"empty", nil, []bool{}},
		{"all new", []int{-1, -1}, []bool{false, false}},
		{"sorted", []int{0, 1, 2}, []bool{true, true, true}},
		{"reversed", []int{2, 1, 0}, []bool{false, false, true}},
		{"one moved to front", []int{3, 0, 1, 2}, []bool{false, true, true, true}},
		{"gaps and new", []int{0, -1, 2, 1, -1, 3}, []bool{true, false, false, true, false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := longestIncreasing(tt.seq)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("longestIncreasing(%v) mismatch (-want +got):\n%s", tt.seq, diff)
			}
		})
	}
}

func TestChangeString(t *testing.T) {
	if got := Change(0).String(); got != "none" {
		t.Errorf("String() = %q, want none", got)
	}
	if got := (ChangeAttrs | ChangeChildren).String(); got != "attrs|children" {
		t.Errorf("String() = %q, want attrs|children", got)
	}
	if !(ChangeAttrs | ChangeText).Has(ChangeText) {
		t.Error("Has(ChangeText) = false, want true")
	}
	if Change(0).Has(0) {
		t.Error("Has(0) = true, want false")
	}
}
