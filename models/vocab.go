package models

// Namespace prefixes for the vocabularies the engine reasons about.
const (
	RDFNamespace  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFSNamespace = "http://www.w3.org/2000/01/rdf-schema#"
	OWLNamespace  = "http://www.w3.org/2002/07/owl#"
	SKOSNamespace = "http://www.w3.org/2004/02/skos/core#"
	XSDNamespace  = "http://www.w3.org/2001/XMLSchema#"
)

// Predicate IRIs with special meaning for graph rendering.
const (
	RDFType            = RDFNamespace + "type"
	RDFSSubClassOf     = RDFSNamespace + "subClassOf"
	RDFSSubPropertyOf  = RDFSNamespace + "subPropertyOf"
	RDFSDomain         = RDFSNamespace + "domain"
	RDFSRange          = RDFSNamespace + "range"
	OWLEquivalentClass = OWLNamespace + "equivalentClass"
	OWLDisjointWith    = OWLNamespace + "disjointWith"
	OWLComplementOf    = OWLNamespace + "complementOf"
	OWLIntersectionOf  = OWLNamespace + "intersectionOf"
	OWLUnionOf         = OWLNamespace + "unionOf"
	OWLOneOf           = OWLNamespace + "oneOf"
	SKOSBroader        = SKOSNamespace + "broader"
	SKOSNarrower       = SKOSNamespace + "narrower"
	SKOSInScheme       = SKOSNamespace + "inScheme"
	SKOSTopConceptOf   = SKOSNamespace + "topConceptOf"
	XSDString          = XSDNamespace + "string"
)

// Type IRIs used to infer the role of an untyped resource.
const (
	RDFProperty           = RDFNamespace + "Property"
	RDFSClass             = RDFSNamespace + "Class"
	RDFSDatatype          = RDFSNamespace + "Datatype"
	OWLClass              = OWLNamespace + "Class"
	OWLObjectProperty     = OWLNamespace + "ObjectProperty"
	OWLDatatypeProperty   = OWLNamespace + "DatatypeProperty"
	OWLAnnotationProperty = OWLNamespace + "AnnotationProperty"
	OWLOntologyProperty   = OWLNamespace + "OntologyProperty"
	OWLOntology           = OWLNamespace + "Ontology"
	OWLNamedIndividual    = OWLNamespace + "NamedIndividual"
	SKOSConcept           = SKOSNamespace + "Concept"
	SKOSConceptScheme     = SKOSNamespace + "ConceptScheme"
	SKOSCollection        = SKOSNamespace + "Collection"
	SKOSOrderedCollection = SKOSNamespace + "OrderedCollection"
)

// typeRoles maps rdf:type objects to the role they confer.
var typeRoles = map[string]Role{
	RDFProperty:           RoleProperty,
	RDFSClass:             RoleClass,
	RDFSDatatype:          RoleDataRange,
	OWLClass:              RoleClass,
	OWLObjectProperty:     RoleObjectProperty,
	OWLDatatypeProperty:   RoleDatatypeProperty,
	OWLAnnotationProperty: RoleAnnotationProperty,
	OWLOntologyProperty:   RoleOntologyProperty,
	OWLOntology:           RoleOntology,
	OWLNamedIndividual:    RoleIndividual,
	SKOSConcept:           RoleConcept,
	SKOSConceptScheme:     RoleConceptScheme,
	SKOSCollection:        RoleSkosCollection,
	SKOSOrderedCollection: RoleSkosOrderedCollection,
}

// RoleForType returns the role conferred by an rdf:type object, or false
// when the type carries no special role.
func RoleForType(typeIRI string) (Role, bool) {
	r, ok := typeRoles[typeIRI]
	return r, ok
}

// classAxioms are the predicates whose links are drawn dashed.
var classAxioms = map[string]bool{
	RDFSSubClassOf:     true,
	OWLEquivalentClass: true,
	OWLDisjointWith:    true,
	OWLComplementOf:    true,
	OWLIntersectionOf:  true,
	OWLUnionOf:         true,
	OWLOneOf:           true,
}

// IsClassAxiom reports whether predicate is an OWL/RDFS class axiom.
func IsClassAxiom(predicate string) bool {
	return classAxioms[predicate]
}

var prefixes = map[string]string{
	RDFNamespace:  "rdf",
	RDFSNamespace: "rdfs",
	OWLNamespace:  "owl",
	SKOSNamespace: "skos",
	XSDNamespace:  "xsd",
}

// Qname abbreviates iri with a well-known prefix, or returns it unchanged.
func Qname(iri string) string {
	for ns, prefix := range prefixes {
		if len(iri) > len(ns) && iri[:len(ns)] == ns {
			return prefix + ":" + iri[len(ns):]
		}
	}
	return iri
}
