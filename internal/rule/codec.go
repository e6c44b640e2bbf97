package rule

import (
	"encoding/json"
	"fmt"
	"sort"
)

type rawJSON = json.RawMessage

// wireOutcomeBody is the wire shape of the value under the outcome key in
// one entry of the "results" array:
// {"outcome_key": {"action": [...], "severity": "...", "description": "...", "threshold_name": "..."}}.
type wireOutcomeBody struct {
	Action        []string `json:"action,omitempty"`
	Severity      string   `json:"severity,omitempty"`
	Description   string   `json:"description,omitempty"`
	ThresholdName string   `json:"threshold_name,omitempty"`
}

// stringOrArray unmarshals a JSON value that may be a bare string or an
// array of strings into a []string, per the "target"/"element" fields.
func stringOrArray(raw rawJSON) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("%w: expected string or array of strings: %v", ErrBadJSON, err)
	}
	return many, nil
}

func marshalStringOrArray(values []string) rawJSON {
	if len(values) == 1 {
		b, _ := json.Marshal(values[0])
		return b
	}
	b, _ := json.Marshal(values)
	return b
}

// ParseJSON decodes a wire-format rule document:
//
//	{"threshold": {"rule_name": "...", ...}, "extra_top_level": "trash"}
//
// Returns ErrBadJSON on any structural problem; callers are responsible
// for compiling the resulting rule's script (ErrBadLua) separately.
func ParseJSON(data []byte) (*Rule, error) {
	var top map[string]rawJSON
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}

	var kindKey string
	var body rawJSON
	topTrash := make(map[string]rawJSON)
	for k, v := range top {
		if Kind(k).Valid() {
			if kindKey != "" {
				return nil, fmt.Errorf("%w: more than one rule-kind key at top level", ErrBadJSON)
			}
			kindKey = k
			body = v
			continue
		}
		topTrash[k] = v
	}
	if kindKey == "" {
		return nil, fmt.Errorf("%w: top-level object must have exactly one rule-kind member", ErrBadJSON)
	}

	var bodyFields map[string]rawJSON
	if err := json.Unmarshal(body, &bodyFields); err != nil {
		return nil, fmt.Errorf("%w: rule body is not an object: %v", ErrBadJSON, err)
	}

	r := &Rule{
		Kind:      Kind(kindKey),
		Results:   make(map[string]Outcome),
		Variables: make(map[string]float64),
		Source:    defaultSource,
		topTrash:  topTrash,
		bodyTrash: make(map[string]rawJSON),
	}

	known := map[string]bool{
		"rule_name": true, "description": true, "class": true, "categories": true,
		"target": true, "element": true, "results": true, "source": true,
		"values": true, "evaluation": true, "hierarchy": true,
	}
	for k, v := range bodyFields {
		if !known[k] {
			r.bodyTrash[k] = v
		}
	}

	if raw, ok := bodyFields["rule_name"]; ok {
		if err := json.Unmarshal(raw, &r.Name); err != nil {
			return nil, fmt.Errorf("%w: rule_name must be a string: %v", ErrBadJSON, err)
		}
	} else {
		return nil, fmt.Errorf("%w: rule_name is required", ErrBadJSON)
	}

	if raw, ok := bodyFields["description"]; ok {
		json.Unmarshal(raw, &r.Description)
	}
	if raw, ok := bodyFields["class"]; ok {
		json.Unmarshal(raw, &r.Class)
	}
	if raw, ok := bodyFields["categories"]; ok {
		json.Unmarshal(raw, &r.Categories)
	}
	if raw, ok := bodyFields["hierarchy"]; ok {
		json.Unmarshal(raw, &r.Hierarchy)
	}
	if raw, ok := bodyFields["source"]; ok {
		json.Unmarshal(raw, &r.Source)
	}

	target, ok := bodyFields["target"]
	if !ok {
		return nil, fmt.Errorf("%w: target is required", ErrBadJSON)
	}
	metrics, err := stringOrArray(target)
	if err != nil {
		return nil, err
	}
	r.Metrics = metrics

	if raw, ok := bodyFields["element"]; ok {
		assets, err := stringOrArray(raw)
		if err != nil {
			return nil, err
		}
		r.Assets = assets
	}

	resultsRaw, ok := bodyFields["results"]
	if !ok {
		return nil, fmt.Errorf("%w: results is required", ErrBadJSON)
	}
	var resultEntries []map[string]json.RawMessage
	if err := json.Unmarshal(resultsRaw, &resultEntries); err != nil {
		return nil, fmt.Errorf("%w: results must be an array: %v", ErrBadJSON, err)
	}
	for _, entry := range resultEntries {
		if len(entry) != 1 {
			return nil, fmt.Errorf("%w: each results entry must have exactly one outcome key", ErrBadJSON)
		}
		for key, raw := range entry {
			var body wireOutcomeBody
			if err := json.Unmarshal(raw, &body); err != nil {
				return nil, fmt.Errorf("%w: invalid outcome %q: %v", ErrBadJSON, key, err)
			}
			r.Results[key] = Outcome{
				Actions:       body.Action,
				Severity:      Severity(body.Severity),
				Description:   body.Description,
				ThresholdName: body.ThresholdName,
			}
		}
	}

	if raw, ok := bodyFields["values"]; ok {
		var values map[string]float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("%w: values must be a map of numbers: %v", ErrBadJSON, err)
		}
		r.Variables = values
	}

	if r.Kind == KindThreshold {
		r.Code = synthesizeThresholdScript()
	} else {
		raw, ok := bodyFields["evaluation"]
		if !ok {
			return nil, fmt.Errorf("%w: evaluation is required for %s rules", ErrBadJSON, r.Kind)
		}
		var code string
		if err := json.Unmarshal(raw, &code); err != nil {
			return nil, fmt.Errorf("%w: evaluation must be a string: %v", ErrBadJSON, err)
		}
		r.Code = code
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// MarshalJSON serializes r back to wire format, preserving any unrecognized
// members captured at parse time (the "trash tolerance" property).
func (r *Rule) MarshalJSON() ([]byte, error) {
	body := make(map[string]rawJSON)
	for k, v := range r.bodyTrash {
		body[k] = v
	}

	nameB, _ := json.Marshal(r.Name)
	body["rule_name"] = nameB
	if r.Description != "" {
		b, _ := json.Marshal(r.Description)
		body["description"] = b
	}
	if r.Class != "" {
		b, _ := json.Marshal(r.Class)
		body["class"] = b
	}
	if len(r.Categories) > 0 {
		b, _ := json.Marshal(r.Categories)
		body["categories"] = b
	}
	if r.Hierarchy != "" {
		b, _ := json.Marshal(r.Hierarchy)
		body["hierarchy"] = b
	}
	b, _ := json.Marshal(r.Source)
	body["source"] = b

	body["target"] = marshalStringOrArray(r.Metrics)
	if len(r.Assets) > 0 {
		body["element"] = marshalStringOrArray(r.Assets)
	}

	keys := make([]string, 0, len(r.Results))
	for k := range r.Results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	resultEntries := make([]map[string]wireOutcomeBody, 0, len(keys))
	for _, k := range keys {
		o := r.Results[k]
		resultEntries = append(resultEntries, map[string]wireOutcomeBody{
			k: {
				Action:        o.Actions,
				Severity:      string(o.Severity),
				Description:   o.Description,
				ThresholdName: o.ThresholdName,
			},
		})
	}
	resultsB, _ := json.Marshal(resultEntries)
	body["results"] = resultsB

	if len(r.Variables) > 0 {
		b, _ := json.Marshal(r.Variables)
		body["values"] = b
	}
	if r.Kind != KindThreshold {
		b, _ := json.Marshal(r.Code)
		body["evaluation"] = b
	}

	bodyB, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	top := make(map[string]rawJSON)
	for k, v := range r.topTrash {
		top[k] = v
	}
	top[string(r.Kind)] = bodyB

	return json.Marshal(top)
}
