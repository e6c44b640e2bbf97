package autoconfig

import "testing"

func TestIsXPhaseApplicable(t *testing.T) {
	cases := []struct {
		name     string
		ruleName string
		asset    Asset
		disable  bool
		want     bool
	}{
		{
			name:     "1phase voltage rule on 1phase ups is applicable",
			ruleName: "voltage.input_1phase@ups-9",
			asset:    Asset{ExtAttrs: map[string]string{"phases.input": "1"}},
			want:     true,
		},
		{
			name:     "1phase voltage rule on 3phase ups is not applicable",
			ruleName: "voltage.input_1phase@ups-9",
			asset:    Asset{ExtAttrs: map[string]string{"phases.input": "3"}},
			want:     false,
		},
		{
			name:     "3phase voltage rule on 3phase epdu is applicable",
			ruleName: "voltage.input_3phase@epdu-2",
			asset:    Asset{ExtAttrs: map[string]string{"phases.input": "3"}},
			want:     true,
		},
		{
			name:     "phase_imbalance on ups honors phases.output",
			ruleName: "phase_imbalance@ups-9",
			asset:    Asset{ExtAttrs: map[string]string{"phases.output": "1"}},
			want:     false,
		},
		{
			name:     "phase_imbalance on rack has no phases.output and is always applicable",
			ruleName: "phase_imbalance@rack-3",
			asset:    Asset{},
			want:     true,
		},
		{
			name:     "unrelated rule is always applicable",
			ruleName: "average.temperature-input@rack-3",
			asset:    Asset{},
			want:     true,
		},
		{
			name:     "disabled filter always passes",
			ruleName: "voltage.input_1phase@ups-9",
			asset:    Asset{ExtAttrs: map[string]string{"phases.input": "3"}},
			disable:  true,
			want:     true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := isXPhaseApplicable(tc.ruleName, tc.asset, tc.disable)
			if got != tc.want {
				t.Errorf("isXPhaseApplicable(%q) = %v, want %v", tc.ruleName, got, tc.want)
			}
		})
	}
}
