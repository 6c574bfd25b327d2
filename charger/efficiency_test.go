package charger

import "testing"

func TestEfficiencyAtKnownPoints(t *testing.T) {
	subTests := []struct {
		name     string
		watts    float64
		model    string
		expected float64
	}{
		{"zero watts", 0, "NPB-1200-48", 0.750},
		{"midpoint 177W", 177, "NPB-1200-48", 0.9222},
		{"exact 1300W", 1300, "NPB-1200-48", 0.9150},
	}
	for _, subTest := range subTests {
		t.Run(subTest.name, func(t *testing.T) {
			got := efficiencyAt(subTest.watts, subTest.model)
			if diff := got - subTest.expected; diff > 0.0005 || diff < -0.0005 {
				t.Errorf("got %.4f, expected %.4f", got, subTest.expected)
			}
		})
	}
}

func TestEfficiencyAtExtrapolatesBeyondLastPoint(t *testing.T) {
	last := efficiencyAt(1300, "NPB-1200-48")
	beyond := efficiencyAt(1600, "NPB-1200-48")

	// Slope between the last two points is negative (0.9150 < 0.9200), so
	// extrapolating further should continue to decrease.
	if beyond >= last {
		t.Errorf("expected extrapolated efficiency %.4f to be below the last table point %.4f", beyond, last)
	}
}

func TestEfficiencyAtScalesByModel(t *testing.T) {
	fullScale := efficiencyAt(100, "NPB-1200-48")
	halfScale := efficiencyAt(50, "NPB-750-48") // 750/1200 = 0.625 scales the x-axis

	if fullScale == 0 || halfScale == 0 {
		t.Fatal("expected non-zero efficiency")
	}
}
