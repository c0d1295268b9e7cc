// Package ingest decodes the backend payloads the graph engine consumes:
// resource descriptions, graph models and UML class models.
package ingest

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/TFMV/ontograph/models"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PropertyValues groups the objects a subject has for one predicate.
type PropertyValues struct {
	Predicate *models.Resource   `json:"predicate" yaml:"predicate"`
	Objects   []*models.Resource `json:"objects" yaml:"objects"`
}

// Description is the predicate/object view of one resource.
type Description struct {
	Subject    *models.Resource `json:"subject" yaml:"subject"`
	Properties []PropertyValues `json:"properties" yaml:"properties"`
}

// Count returns the number of predicate/object pairs.
func (d *Description) Count() int {
	n := 0
	for _, p := range d.Properties {
		n += len(p.Objects)
	}
	return n
}

// Counts returns the number of objects per predicate IRI.
func (d *Description) Counts() map[string]int {
	counts := make(map[string]int, len(d.Properties))
	for _, p := range d.Properties {
		counts[p.Predicate.Value] += len(p.Objects)
	}
	return counts
}

// Filter returns a copy restricted to the given predicate IRIs.
func (d *Description) Filter(predicates []string) *Description {
	keep := make(map[string]bool, len(predicates))
	for _, p := range predicates {
		keep[p] = true
	}
	out := &Description{Subject: d.Subject}
	for _, p := range d.Properties {
		if keep[p.Predicate.Value] {
			out.Properties = append(out.Properties, p)
		}
	}
	return out
}

// Validate checks every term of the description.
func (d *Description) Validate() error {
	if err := d.Subject.Validate(); err != nil {
		return apperrors.NewValidation(fmt.Sprintf("subject: %v", err))
	}
	for i, p := range d.Properties {
		if err := validatePredicate(p.Predicate); err != nil {
			return apperrors.NewValidation(fmt.Sprintf("property %d: %v", i, err))
		}
		for j, o := range p.Objects {
			if err := o.Validate(); err != nil {
				return apperrors.NewValidation(fmt.Sprintf("property %d object %d: %v", i, j, err))
			}
		}
	}
	return nil
}

// Triple is one subject/predicate/object statement.
type Triple struct {
	Subject   *models.Resource `json:"subject" yaml:"subject"`
	Predicate *models.Resource `json:"predicate" yaml:"predicate"`
	Object    *models.Resource `json:"object" yaml:"object"`
}

// Validate checks the three terms; subjects cannot be literals.
func (t Triple) Validate() error {
	if err := t.Subject.Validate(); err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	if t.Subject.IsLiteral() {
		return fmt.Errorf("subject is a literal")
	}
	if err := validatePredicate(t.Predicate); err != nil {
		return err
	}
	if err := t.Object.Validate(); err != nil {
		return fmt.Errorf("object: %w", err)
	}
	return nil
}

// GraphModel is the bulk source/link/target view used by model graphs.
type GraphModel struct {
	Triples []Triple `json:"triples" yaml:"triples"`
}

// Validate checks every triple.
func (m *GraphModel) Validate() error {
	for i, t := range m.Triples {
		if err := t.Validate(); err != nil {
			return apperrors.NewValidation(fmt.Sprintf("triple %d: %v", i, err))
		}
	}
	return nil
}

// PropertyRange is a property whose domain is a class, with its range.
type PropertyRange struct {
	Property *models.Resource `json:"property" yaml:"property"`
	Range    *models.Resource `json:"range,omitempty" yaml:"range,omitempty"`
}

// ClassInfo is a class and the properties declared on it.
type ClassInfo struct {
	Class      *models.Resource `json:"class" yaml:"class"`
	Properties []PropertyRange  `json:"properties" yaml:"properties"`
}

// SubClassAxiom states that Sub is a subclass of Super.
type SubClassAxiom struct {
	Sub   *models.Resource `json:"sub" yaml:"sub"`
	Super *models.Resource `json:"super" yaml:"super"`
}

// ClassModel is the UML view of an ontology.
type ClassModel struct {
	Classes    []ClassInfo     `json:"classes" yaml:"classes"`
	SubClassOf []SubClassAxiom `json:"subclass_of" yaml:"subclass_of"`
}

// Validate checks every class, property and axiom.
func (m *ClassModel) Validate() error {
	for i, c := range m.Classes {
		if err := c.Class.Validate(); err != nil || c.Class.IsLiteral() {
			return apperrors.NewValidation(fmt.Sprintf("class %d is not a valid class term", i))
		}
		for j, p := range c.Properties {
			if err := validatePredicate(p.Property); err != nil {
				return apperrors.NewValidation(fmt.Sprintf("class %d property %d: %v", i, j, err))
			}
			if p.Range != nil {
				if err := p.Range.Validate(); err != nil {
					return apperrors.NewValidation(fmt.Sprintf("class %d property %d range: %v", i, j, err))
				}
			}
		}
	}
	for i, a := range m.SubClassOf {
		if a.Sub.Validate() != nil || a.Super.Validate() != nil {
			return apperrors.NewValidation(fmt.Sprintf("subclass axiom %d is incomplete", i))
		}
	}
	return nil
}

func validatePredicate(p *models.Resource) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("predicate: %w", err)
	}
	if p.Kind != models.KindIRI {
		return fmt.Errorf("predicate %s is not an IRI", p)
	}
	return nil
}

// Decoder decodes payloads in one serialization format.
type Decoder struct {
	name      string
	unmarshal func([]byte, any) error
}

// JSONDecoder decodes JSON payloads.
var JSONDecoder = &Decoder{name: "json", unmarshal: json.Unmarshal}

// YAMLDecoder decodes YAML payloads.
var YAMLDecoder = &Decoder{name: "yaml", unmarshal: yaml.Unmarshal}

// GetName returns the name of the format.
func (d *Decoder) GetName() string {
	return d.name
}

// DecodeDescription decodes and validates a resource description.
func (d *Decoder) DecodeDescription(data []byte) (*Description, error) {
	var desc Description
	if err := d.decode(data, &desc, "description"); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

// DecodeGraphModel decodes and validates a graph model.
func (d *Decoder) DecodeGraphModel(data []byte) (*GraphModel, error) {
	var m GraphModel
	if err := d.decode(data, &m, "graph model"); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// DecodeClassModel decodes and validates a class model.
func (d *Decoder) DecodeClassModel(data []byte) (*ClassModel, error) {
	var m ClassModel
	if err := d.decode(data, &m, "class model"); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (d *Decoder) decode(data []byte, v any, what string) error {
	if err := d.unmarshal(data, v); err != nil {
		return apperrors.NewValidation(fmt.Sprintf("error parsing %s %s: %v", strings.ToUpper(d.name), what, err))
	}
	return nil
}

// GetDecoder returns the decoder for the given format name.
func GetDecoder(format string) (*Decoder, error) {
	switch strings.ToLower(format) {
	case "json":
		return JSONDecoder, nil
	case "yaml", "yml":
		return YAMLDecoder, nil
	default:
		return nil, apperrors.NewValidation(fmt.Sprintf("unsupported format: %s", format))
	}
}

// DecoderForPath picks a decoder from a file extension.
func DecoderForPath(path string) (*Decoder, error) {
	return GetDecoder(strings.TrimPrefix(filepath.Ext(path), "."))
}
