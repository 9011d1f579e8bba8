package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/aretw0/cftbridge/pkg/protocol"
)

// Overlay contains dynamic state data to visualize on the graph.
type Overlay struct {
	// Pending lists element ids with changes not yet acknowledged by the worker.
	Pending []int
}

// GenerateMermaid produces a Mermaid flowchart of the synchronized part of model.
// It applies semantic styling:
// - Gate (AND, OR, XOR, NOT, M/N): {{Hexagon}}
// - Basic event: ((Circle))
// - Failure mode: [/Parallelogram/]
// - Component fault tree: [[Subroutine]]
// - Default: [Rectangle]
// Untracked elements and connectors are omitted.
func GenerateMermaid(model domain.Model, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	elements := make([]domain.Element, 0, len(model.Elements))
	known := make(map[int]bool, len(model.Elements))
	for _, e := range model.Elements {
		if domain.IsTrackedElement(e.Stereotype) {
			elements = append(elements, e)
			known[e.ID] = true
		}
	}
	sort.Slice(elements, func(i, j int) bool { return elements[i].ID < elements[j].ID })

	for _, e := range elements {
		opener, closer := shape(e.Stereotype)

		label := e.Name
		if label == "" {
			label = e.Stereotype
		}
		label = strings.ReplaceAll(label, "\"", "'")
		if v, ok := taggedValue(e); ok {
			label = fmt.Sprintf("%s <br/> %s", label, v)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", nodeID(e.ID), opener, label, closer)

		if e.ParentID != 0 && known[e.ParentID] {
			fmt.Fprintf(&sb, "    %s -. \"child of\" .-> %s\n", nodeID(e.ID), nodeID(e.ParentID))
		}
		if e.ClassifierID != 0 && known[e.ClassifierID] {
			fmt.Fprintf(&sb, "    %s -. \"instance of\" .-> %s\n", nodeID(e.ID), nodeID(e.ClassifierID))
		}
	}

	connectors := append([]domain.Connector(nil), model.Connectors...)
	sort.Slice(connectors, func(i, j int) bool { return connectors[i].ID < connectors[j].ID })
	for _, c := range connectors {
		if !domain.IsTrackedConnector(c.Stereotype) {
			continue
		}
		arrow := "-->"
		if c.Stereotype != "FailurePropagation" {
			arrow = fmt.Sprintf("-- \"%s\" -->", c.Stereotype)
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", nodeID(c.ClientID), arrow, nodeID(c.SupplierID))
	}

	if overlay != nil && len(overlay.Pending) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef pending fill:#ffeb3b,stroke:#fbc02d,stroke-width:3px,color:#000;\n")

		seen := make(map[int]bool)
		for _, id := range overlay.Pending {
			if seen[id] || !known[id] {
				continue
			}
			seen[id] = true
			fmt.Fprintf(&sb, "    class %s pending;\n", nodeID(id))
		}
	}

	return sb.String()
}

func shape(stereotype string) (string, string) {
	switch stereotype {
	case "FTAND", "FTOR", "FTXOR", "FTNOT", "FTM/N":
		return "{{", "}}"
	case "FTBasicEvent":
		return "((", "))"
	case "InputFailureMode", "OutputFailureMode":
		return "[/", "/]"
	case "CFT", "CFTInstance", "FT", "FTInstance":
		return "[[", "]]"
	}
	return "[", "]"
}

func taggedValue(e domain.Element) (string, bool) {
	if !domain.CarriesTaggedValue(e.Stereotype) {
		return "", false
	}
	if v, ok := e.TaggedValues[protocol.TagProbability]; ok {
		return "p=" + v, true
	}
	if v, ok := e.TaggedValues[protocol.TagMOON]; ok {
		return "m=" + v, true
	}
	return "", false
}

func nodeID(id int) string {
	return "e" + strconv.Itoa(id)
}

// PendingElements extracts the ids of elements touched by queued change records.
// Connector records and records that do not decode are ignored.
func PendingElements(records []string) []int {
	var ids []int
	for _, rec := range records {
		r, err := protocol.DecodeRecord(rec)
		if err != nil {
			continue
		}
		switch r.Command {
		case protocol.CmdAddElement, protocol.CmdUpdateElement, protocol.CmdDeleteElement:
		default:
			continue
		}
		if id, err := strconv.Atoi(r.ID()); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
