package protocol

import (
	"strconv"
	"strings"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// Tagged value keys looked up on probability-carrying elements, in precedence order,
// and the attribute name each one is sent under.
const (
	TagProbability = "cValue"
	TagMOON        = "m"

	AttrProbability = "Basic Failure Probability"
	AttrMOON        = "MOONNumber"
)

// Synthetic relation stereotypes derived from element structure.
const (
	RelChildOf    = "Is_Child_Of"
	RelInstanceOf = "Is_Instance_Of"
)

func fields(parts ...string) string {
	return strings.Join(parts, FieldSeparator)
}

// EncodeElement renders id, name, stereotype and classifier, plus the failure probability
// (or M/N number) for the stereotypes that carry one.
func EncodeElement(e domain.Element) string {
	var b strings.Builder
	b.WriteString(fields(strconv.Itoa(e.ID), e.Name, e.Stereotype, strconv.Itoa(e.ClassifierID)))

	if domain.CarriesTaggedValue(e.Stereotype) {
		if v, ok := e.TaggedValues[TagProbability]; ok {
			b.WriteString(FieldSeparator + AttrProbability + TagSeparator + v)
		} else if v, ok := e.TaggedValues[TagMOON]; ok {
			b.WriteString(FieldSeparator + AttrMOON + TagSeparator + v)
		}
	}
	return b.String()
}

// EncodeConnector renders id, stereotype, client and supplier.
func EncodeConnector(c domain.Connector) string {
	return fields(strconv.Itoa(c.ID), c.Stereotype, strconv.Itoa(c.ClientID), strconv.Itoa(c.SupplierID))
}

// EncodeChildOf renders the synthetic relation from an element to its structural parent.
func EncodeChildOf(e domain.Element) string {
	return fields(strconv.Itoa(e.ID), RelChildOf, strconv.Itoa(e.ID), strconv.Itoa(e.ParentID))
}

// EncodeInstanceOf renders the synthetic relation from an element to its classifier.
func EncodeInstanceOf(e domain.Element) string {
	return fields(strconv.Itoa(e.ID), RelInstanceOf, strconv.Itoa(e.ID), strconv.Itoa(e.ClassifierID))
}

// RelationRecords returns the synthetic relation records of e: is-child-of when it has a
// parent and is-instance-of when it has a classifier, in that order.
func RelationRecords(e domain.Element) []string {
	var out []string
	if e.ParentID != 0 {
		out = append(out, EncodeChildOf(e))
	}
	if e.ClassifierID != 0 {
		out = append(out, EncodeInstanceOf(e))
	}
	return out
}

// SingleRecord prefixes an encoded entity with a single-entity command.
func SingleRecord(c Command, payload string) string {
	return StartSingle(c) + payload
}

// FullResyncRecords encodes a model for a full resynchronization. Elements are returned in
// model order. Connector records follow the same element order: for each element, its
// tracked outgoing connectors, then its synthetic relations.
func FullResyncRecords(m domain.Model) (elements, connectors []string) {
	tracked := m.Tracked()
	for _, e := range tracked.Elements {
		for _, c := range tracked.OutgoingConnectors(e.ID) {
			connectors = append(connectors, EncodeConnector(c))
		}
		connectors = append(connectors, RelationRecords(e)...)
		elements = append(elements, EncodeElement(e))
	}
	return elements, connectors
}
