package autoconfig

import (
	"os"
	"path/filepath"
	"strings"
)

// convertTypeSubType2Name builds the template-filename substring a device's
// type/subtype must match, e.g. "__ups__" or "__sensor_sensorgpio__". An
// empty, "unknown" or "N_A" subtype collapses to the type-only form.
func convertTypeSubType2Name(assetType, subtype string) string {
	if subtype == "" || subtype == "unknown" || subtype == "N_A" {
		return "__" + assetType + "__"
	}
	return "__" + assetType + "_" + subtype + "__"
}

// templateFile is one matched rule template read off disk.
type templateFile struct {
	name string
	body []byte
}

// loadTemplates scans templatesDir for files whose name contains the
// type/subtype token, skipping the datacenter default-power template when
// fastTrack is set (it isn't wanted for fast-tracked devices).
func loadTemplates(templatesDir, assetType, subtype string, fastTrack bool) ([]templateFile, error) {
	entries, err := os.ReadDir(templatesDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	token := convertTypeSubType2Name(assetType, subtype)
	var out []templateFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.Contains(name, token) {
			continue
		}
		if fastTrack && name == "realpower.default@__datacenter__.rule" {
			continue
		}
		body, err := os.ReadFile(filepath.Join(templatesDir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, templateFile{name: name, body: body})
	}
	return out, nil
}

// hasTemplateFor reports whether any file in templatesDir matches the
// type/subtype token, used by configureDevice to treat a tracked device
// with no rule template at all as configured.
func hasTemplateFor(templatesDir, assetType, subtype string) bool {
	entries, err := os.ReadDir(templatesDir)
	if err != nil {
		return false
	}
	token := convertTypeSubType2Name(assetType, subtype)
	for _, entry := range entries {
		if !entry.IsDir() && strings.Contains(entry.Name(), token) {
			return true
		}
	}
	return false
}

// replaceTokens substitutes every occurrence of each pattern with its
// corresponding replacement, scanning patterns in order. patterns and
// replacements must be parallel slices.
func replaceTokens(text string, patterns, replacements []string) string {
	result := text
	for i, p := range patterns {
		result = strings.ReplaceAll(result, p, replacements[i])
	}
	return result
}

// loadAllTemplateFiles reads every file in templatesDir regardless of name,
// for the unfiltered template listing interface.
func loadAllTemplateFiles(templatesDir string) ([]templateFile, error) {
	entries, err := os.ReadDir(templatesDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []templateFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		body, err := os.ReadFile(filepath.Join(templatesDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, templateFile{name: entry.Name(), body: body})
	}
	return out, nil
}

// containsFold reports whether s contains substr, ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// isModelOk reports whether a sensorgpio template's body mentions the
// device's model string; sensorgpio templates are further filtered by
// model beyond the type/subtype match.
func isModelOk(model string, templateBody []byte) bool {
	if model == "" {
		return true
	}
	return strings.Contains(string(templateBody), model)
}

// substitutionTokens extracts the fast_track/port/alarm_severity/
// normal_state/model/name fields configureDevice needs from an asset's ext
// attributes and, together with the logical asset names passed in, builds
// the parallel patterns/replacements slices replaceTokens expects.
func substitutionTokens(ruleName, logicalAssetEname, logicalAssetIname string, ext map[string]string) (patterns, replacements []string, fastTrack bool, model string) {
	var port, severity, normalState, ruleResult, ename string

	if v, ok := ext["fast_track"]; ok {
		fastTrack = v == "true"
	}
	if v, ok := ext["port"]; ok {
		port = "GPI" + v
	}
	if v, ok := ext["alarm_severity"]; ok {
		severity = v
		ruleResult = strings.ToLower(v)
	}
	if v, ok := ext["normal_state"]; ok {
		normalState = v
	}
	if v, ok := ext["model"]; ok {
		model = v
	}
	if v, ok := ext["name"]; ok {
		ename = v
	}

	patterns = []string{
		"__name__", "__port__", "__logicalasset__", "__logicalasset_iname__",
		"__severity__", "__normalstate__", "__rule_result__", "__ename__",
	}
	replacements = []string{
		ruleName, port, logicalAssetEname, logicalAssetIname,
		severity, normalState, ruleResult, ename,
	}
	return patterns, replacements, fastTrack, model
}
