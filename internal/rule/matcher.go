package rule

// Matcher selects rules, mirroring the original RuleMatcher /
// RuleNameMatcher / RuleAssetMatcher hierarchy (original_source/src/rule.h).
// Consumed by Catalog.DeleteMatching; Delete and DeleteByElement look rules
// up through the by_name and by_asset indexes instead.
type Matcher interface {
	Matches(r *Rule) bool
}

// NameMatcher matches a rule by its (UTF-8 normalized) name.
type NameMatcher struct{ Name string }

func (m NameMatcher) Matches(r *Rule) bool { return NamesEqual(r.Name, m.Name) }

// AssetMatcher matches any rule whose Assets list contains the given asset.
// A pattern rule with an empty Assets list never matches.
type AssetMatcher struct{ AssetID string }

func (m AssetMatcher) Matches(r *Rule) bool { return r.HasAsset(m.AssetID) }
