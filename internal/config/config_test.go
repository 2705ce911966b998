package config

import "testing"

func TestNormalizeBudgetPercentagesClampsAndRenormalizes(t *testing.T) {
	dds, bundle, jpeg := NormalizeBudgetPercentages(40, 55, 5)
	sum := dds + bundle + jpeg
	if sum < 99.9 || sum > 100.1 {
		t.Fatalf("sum = %f, want ~100", sum)
	}
	if dds < 39 || dds > 41 {
		t.Errorf("dds = %f, want ~40", dds)
	}
}

func TestNormalizeBudgetPercentagesClampsOutOfRange(t *testing.T) {
	// dds requested at 90 (max 60), bundle at 10 (min 30), jpeg at 50 (max 20).
	dds, bundle, jpeg := NormalizeBudgetPercentages(90, 10, 50)
	if dds > 60.01 {
		t.Errorf("dds should be clamped to <=60 before renormalizing, got raw basis; normalized = %f", dds)
	}
	sum := dds + bundle + jpeg
	if sum < 99.9 || sum > 100.1 {
		t.Fatalf("sum = %f, want ~100", sum)
	}
}
