// Package autoconfig implements the asset inventory cache, template
// enumeration and instantiation, applicability filtering, and rule catalog
// reconciliation on asset lifecycle events.
package autoconfig

// Asset is the asset model as received on the ASSETS stream.
type Asset struct {
	ID        string
	Status    string // "active" | "nonactive"
	Type      string
	Subtype   string
	ParentIDs [4]string
	Priority  int
	ExtAttrs  map[string]string
	AuxAttrs  map[string]string
}

// Name is the asset's display name (ext_attrs["name"]).
func (a Asset) Name() string {
	return a.ExtAttrs["name"]
}

// UpdateTS is the asset's last-modified timestamp tag, used to detect
// no-op republishes.
func (a Asset) UpdateTS() string {
	return a.ExtAttrs["update_ts"]
}

// IsContainerType reports whether a is one of the four location types
// that feed the containers (iname -> ename) index.
func (a Asset) IsContainerType() bool {
	switch a.Type {
	case "datacenter", "room", "row", "rack":
		return true
	}
	return false
}

// Operation is the asset lifecycle operation named on the ASSETS stream.
type Operation string

const (
	OpCreate    Operation = "create"
	OpUpdate    Operation = "update"
	OpDelete    Operation = "delete"
	OpRetire    Operation = "retire"
	OpInventory Operation = "inventory"
)

// Event is one asset lifecycle notification.
type Event struct {
	Operation Operation
	Asset     Asset
}
