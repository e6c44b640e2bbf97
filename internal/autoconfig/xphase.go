package autoconfig

import "strings"

// isXPhaseApplicable reports whether ruleName should be instantiated for
// asset, for the handful of phase-count-dependent rule families that only
// make sense on a 1-phase or 3-phase device. Every other rule name is
// applicable unconditionally. DisableXPhaseFilter bypasses the whole check,
// matching the selftest escape hatch in the original configurator.
func isXPhaseApplicable(ruleName string, asset Asset, disableFilter bool) bool {
	if disableFilter {
		return true
	}

	switch {
	case strings.HasPrefix(ruleName, "voltage.input_1phase@ups-"),
		strings.HasPrefix(ruleName, "voltage.input_1phase@epdu-"):
		return asset.ExtAttrs["phases.input"] == "1"

	case strings.HasPrefix(ruleName, "voltage.input_3phase@ups-"),
		strings.HasPrefix(ruleName, "voltage.input_3phase@epdu-"):
		return asset.ExtAttrs["phases.input"] == "3"

	case strings.HasPrefix(ruleName, "load.input_1phase@epdu-"):
		return asset.ExtAttrs["phases.input"] == "1"

	case strings.HasPrefix(ruleName, "load.input_3phase@epdu-"):
		return asset.ExtAttrs["phases.input"] == "3"

	case strings.HasPrefix(ruleName, "phase_imbalance@ups-"),
		strings.HasPrefix(ruleName, "phase_imbalance@epdu-"):
		return asset.ExtAttrs["phases.output"] == "3"

	case strings.HasPrefix(ruleName, "phase_imbalance@datacenter-"),
		strings.HasPrefix(ruleName, "phase_imbalance@rack-"):
		// datacenter/rack assets carry no phases.output attribute; these
		// rule families are always instantiated for them.
		return true
	}

	return true
}
