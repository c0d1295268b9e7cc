package models

import (
	"fmt"
	"strings"
)

// Kind is the RDF term kind of a Resource.
type Kind string

const (
	KindIRI     Kind = "iri"
	KindBNode   Kind = "bnode"
	KindLiteral Kind = "literal"
)

// Role is the semantic role of a resource as reported by the backend.
type Role string

const (
	RoleClass                 Role = "cls"
	RoleIndividual            Role = "individual"
	RoleProperty              Role = "property"
	RoleObjectProperty        Role = "objectProperty"
	RoleDatatypeProperty      Role = "datatypeProperty"
	RoleAnnotationProperty    Role = "annotationProperty"
	RoleOntologyProperty      Role = "ontologyProperty"
	RoleConcept               Role = "concept"
	RoleConceptScheme         Role = "conceptScheme"
	RoleXLabel                Role = "xLabel"
	RoleSkosCollection        Role = "skosCollection"
	RoleSkosOrderedCollection Role = "skosOrderedCollection"
	RoleOntology              Role = "ontology"
	RoleDataRange             Role = "dataRange"
	RoleLimeLexicon           Role = "limeLexicon"
	RoleOntolexLexicalEntry   Role = "ontolexLexicalEntry"
	RoleOntolexForm           Role = "ontolexForm"
	RoleOntolexLexicalSense   Role = "ontolexLexicalSense"
	RoleDecompComponent       Role = "decompComponent"
	RoleMixed                 Role = "mixed"
	RoleUndetermined          Role = "undetermined"
)

// Resource is an RDF term: an IRI, a blank node or a literal.
type Resource struct {
	Kind     Kind   `json:"kind" yaml:"kind"`
	Value    string `json:"value" yaml:"value"`
	Role     Role   `json:"role,omitempty" yaml:"role,omitempty"`
	Show     string `json:"show,omitempty" yaml:"show,omitempty"`
	Lang     string `json:"lang,omitempty" yaml:"lang,omitempty"`
	Datatype string `json:"datatype,omitempty" yaml:"datatype,omitempty"`
}

// NewIRI creates an IRI resource with the given role.
func NewIRI(iri string, role Role) *Resource {
	return &Resource{Kind: KindIRI, Value: iri, Role: role}
}

// NewBNode creates a blank node resource.
func NewBNode(id string) *Resource {
	return &Resource{Kind: KindBNode, Value: id}
}

// NewLiteral creates a literal; lang and datatype may be empty.
func NewLiteral(value, lang, datatype string) *Resource {
	return &Resource{Kind: KindLiteral, Value: value, Lang: lang, Datatype: datatype}
}

// IsLiteral reports whether r is a literal.
func (r *Resource) IsLiteral() bool {
	return r != nil && r.Kind == KindLiteral
}

// Equal compares two resources by value. Role and Show are presentation
// attributes and do not participate.
func (r *Resource) Equal(other *Resource) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Kind != other.Kind || r.Value != other.Value {
		return false
	}
	if r.Kind == KindLiteral {
		return r.Lang == other.Lang && r.Datatype == other.Datatype
	}
	return true
}

// Validate checks that the resource is a well-formed term.
func (r *Resource) Validate() error {
	if r == nil {
		return fmt.Errorf("resource is nil")
	}
	switch r.Kind {
	case KindIRI, KindBNode:
		if r.Value == "" {
			return fmt.Errorf("%s resource has an empty value", r.Kind)
		}
	case KindLiteral:
	default:
		return fmt.Errorf("unknown resource kind %q", r.Kind)
	}
	return nil
}

// DisplayName is the text rendered for the resource: Show when present,
// otherwise the local name of an IRI or the raw value.
func (r *Resource) DisplayName() string {
	if r == nil {
		return ""
	}
	if r.Show != "" {
		return r.Show
	}
	switch r.Kind {
	case KindIRI:
		if q := Qname(r.Value); q != r.Value {
			return q
		}
		if i := strings.LastIndexAny(r.Value, "#/"); i >= 0 && i < len(r.Value)-1 {
			return r.Value[i+1:]
		}
		return r.Value
	case KindBNode:
		return "_:" + r.Value
	default:
		if r.Lang != "" {
			return r.Value + "@" + r.Lang
		}
		return r.Value
	}
}

// String renders the term in N-Triples-like notation.
func (r *Resource) String() string {
	if r == nil {
		return "<nil>"
	}
	switch r.Kind {
	case KindIRI:
		return "<" + r.Value + ">"
	case KindBNode:
		return "_:" + r.Value
	default:
		s := fmt.Sprintf("%q", r.Value)
		if r.Lang != "" {
			return s + "@" + r.Lang
		}
		if r.Datatype != "" {
			return s + "^^<" + r.Datatype + ">"
		}
		return s
	}
}
