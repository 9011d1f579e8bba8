package domain

// Element is a snapshot of one model element as seen by the host integration layer.
type Element struct {
	ID           int               `json:"id" yaml:"id"`
	Name         string            `json:"name" yaml:"name"`
	Stereotype   string            `json:"stereotype" yaml:"stereotype"`
	ClassifierID int               `json:"classifier_id,omitempty" yaml:"classifier_id,omitempty"`
	ParentID     int               `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	TaggedValues map[string]string `json:"tagged_values,omitempty" yaml:"tagged_values,omitempty"`
}

// Connector is a snapshot of one model connector. ClientID is the source element and
// SupplierID the target element.
type Connector struct {
	ID         int    `json:"id" yaml:"id"`
	Stereotype string `json:"stereotype" yaml:"stereotype"`
	ClientID   int    `json:"client_id" yaml:"client_id"`
	SupplierID int    `json:"supplier_id" yaml:"supplier_id"`
}

// Model is the full set of entities offered for a full resynchronization.
type Model struct {
	Elements   []Element   `json:"elements" yaml:"elements"`
	Connectors []Connector `json:"connectors" yaml:"connectors"`
}

var trackedElements = map[string]struct{}{
	"FT":                           {},
	"FTInstance":                   {},
	"CFT":                          {},
	"CFTInstance":                  {},
	"IESELogicalComponent":         {},
	"IESELogicalComponentInstance": {},
	"IESELogicalInport":            {},
	"IESELogicalInportInstance":    {},
	"IESELogicalOutport":           {},
	"IESELogicalOutportInstance":   {},
	"FTAND":                        {},
	"FTOR":                         {},
	"FTM/N":                        {},
	"FTXOR":                        {},
	"FTBasicEvent":                 {},
	"FTNOT":                        {},
	"InputFailureMode":             {},
	"OutputFailureMode":            {},
}

var taggedElements = map[string]struct{}{
	"FTM/N":            {},
	"FTBasicEvent":     {},
	"InputFailureMode": {},
}

var trackedConnectors = map[string]struct{}{
	"ComponentFailureModelTrace": {},
	"FailurePropagation":         {},
	"PortFailureModeTrace":       {},
	"Logical Information Flow":   {},
}

// IsTrackedElement reports whether elements with the given stereotype are synchronized.
func IsTrackedElement(stereotype string) bool {
	_, ok := trackedElements[stereotype]
	return ok
}

// IsTrackedConnector reports whether connectors with the given stereotype are synchronized.
func IsTrackedConnector(stereotype string) bool {
	_, ok := trackedConnectors[stereotype]
	return ok
}

// CarriesTaggedValue reports whether the encoding of an element with this stereotype
// includes its probability or M/N attribute.
func CarriesTaggedValue(stereotype string) bool {
	_, ok := taggedElements[stereotype]
	return ok
}

// Tracked returns the subset of the model that is synchronized: tracked elements and the
// tracked connectors whose client is one of them.
func (m Model) Tracked() Model {
	out := Model{}
	ids := make(map[int]struct{}, len(m.Elements))
	for _, e := range m.Elements {
		if IsTrackedElement(e.Stereotype) {
			out.Elements = append(out.Elements, e)
			ids[e.ID] = struct{}{}
		}
	}
	for _, c := range m.Connectors {
		if !IsTrackedConnector(c.Stereotype) {
			continue
		}
		if _, ok := ids[c.ClientID]; ok {
			out.Connectors = append(out.Connectors, c)
		}
	}
	return out
}

// OutgoingConnectors returns the tracked connectors whose client is the given element.
func (m Model) OutgoingConnectors(elementID int) []Connector {
	var out []Connector
	for _, c := range m.Connectors {
		if c.ClientID == elementID && IsTrackedConnector(c.Stereotype) {
			out = append(out, c)
		}
	}
	return out
}
