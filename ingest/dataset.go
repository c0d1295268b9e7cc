package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/TFMV/ontograph/models"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
)

// Dataset is an in-memory triple store loaded from a file. It answers the
// same three queries as the HTTP backend and is used by the CLI and tests.
type Dataset struct {
	Resources []*models.Resource `json:"resources" yaml:"resources"`
	Triples   []Triple           `json:"triples" yaml:"triples"`

	annotations map[string]*models.Resource
	bySubject   map[string][]int
}

// LoadDataset reads a JSON or YAML dataset, choosing the format by extension.
func LoadDataset(path string) (*Dataset, error) {
	dec, err := DecoderForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading dataset: %w", err)
	}
	return dec.DecodeDataset(data)
}

// DecodeDataset decodes, validates and indexes a dataset.
func (d *Decoder) DecodeDataset(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := d.decode(data, &ds, "dataset"); err != nil {
		return nil, err
	}
	if err := ds.init(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// NewDataset builds a dataset from annotated resources and triples.
func NewDataset(resources []*models.Resource, triples []Triple) (*Dataset, error) {
	ds := &Dataset{Resources: resources, Triples: triples}
	if err := ds.init(); err != nil {
		return nil, err
	}
	return ds, nil
}

func key(r *models.Resource) string {
	return string(r.Kind) + " " + r.Value
}

func (ds *Dataset) init() error {
	ds.annotations = make(map[string]*models.Resource)
	ds.bySubject = make(map[string][]int)

	explicit := make(map[string]bool)
	for i, r := range ds.Resources {
		if err := r.Validate(); err != nil || r.IsLiteral() {
			return apperrors.NewValidation(fmt.Sprintf("resource %d is not a valid IRI or blank node", i))
		}
		c := *r
		ds.annotations[key(r)] = &c
		explicit[key(r)] = c.Role != ""
	}
	for i, t := range ds.Triples {
		if err := t.Validate(); err != nil {
			return apperrors.NewValidation(fmt.Sprintf("triple %d: %v", i, err))
		}
		k := key(t.Subject)
		ds.bySubject[k] = append(ds.bySubject[k], i)
	}

	// Infer roles from rdf:type where no role is annotated.
	for _, t := range ds.Triples {
		if t.Predicate.Value != models.RDFType || t.Object.IsLiteral() {
			continue
		}
		role, ok := models.RoleForType(t.Object.Value)
		if !ok {
			role = models.RoleIndividual
		}
		k := key(t.Subject)
		if explicit[k] {
			continue
		}
		a, ok := ds.annotations[k]
		if !ok {
			a = &models.Resource{Kind: t.Subject.Kind, Value: t.Subject.Value}
			ds.annotations[k] = a
		}
		switch {
		case a.Role == "":
			a.Role = role
		case a.Role != role && role != models.RoleIndividual && a.Role != models.RoleIndividual:
			a.Role = models.RoleMixed
		case a.Role == models.RoleIndividual:
			a.Role = role
		}
	}
	return nil
}

// annotate returns a copy of r carrying the dataset's role and label.
func (ds *Dataset) annotate(r *models.Resource) *models.Resource {
	c := *r
	if r.IsLiteral() {
		return &c
	}
	if a, ok := ds.annotations[key(r)]; ok {
		if c.Role == "" {
			c.Role = a.Role
		}
		if c.Show == "" {
			c.Show = a.Show
		}
	}
	return &c
}

func (ds *Dataset) known(r *models.Resource) bool {
	k := key(r)
	if _, ok := ds.annotations[k]; ok {
		return true
	}
	_, ok := ds.bySubject[k]
	return ok
}

func (ds *Dataset) annotateTriple(t Triple) Triple {
	return Triple{
		Subject:   ds.annotate(t.Subject),
		Predicate: ds.annotate(t.Predicate),
		Object:    ds.annotate(t.Object),
	}
}

// DescribeResource returns r's predicates and objects in dataset order.
func (ds *Dataset) DescribeResource(ctx context.Context, r *models.Resource) (*Description, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r == nil || r.IsLiteral() {
		return nil, apperrors.NewValidation("only IRIs and blank nodes can be described")
	}
	if !ds.known(r) {
		return nil, apperrors.NewNotFound(fmt.Sprintf("resource %s not found", r))
	}

	desc := &Description{Subject: ds.annotate(r)}
	index := make(map[string]int)
	for _, i := range ds.bySubject[key(r)] {
		t := ds.Triples[i]
		p, ok := index[t.Predicate.Value]
		if !ok {
			p = len(desc.Properties)
			index[t.Predicate.Value] = p
			desc.Properties = append(desc.Properties, PropertyValues{Predicate: ds.annotate(t.Predicate)})
		}
		desc.Properties[p].Objects = append(desc.Properties[p].Objects, ds.annotate(t.Object))
	}
	return desc, nil
}

// GraphModel returns the resource-to-resource triples reachable from root,
// or all of them when root is nil. Literal objects are left out.
func (ds *Dataset) GraphModel(ctx context.Context, root *models.Resource) (*GraphModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := &GraphModel{}
	if root == nil {
		for _, t := range ds.Triples {
			if !t.Object.IsLiteral() {
				m.Triples = append(m.Triples, ds.annotateTriple(t))
			}
		}
		return m, nil
	}
	if root.IsLiteral() || !ds.known(root) {
		return nil, apperrors.NewNotFound(fmt.Sprintf("resource %s not found", root))
	}

	included := make(map[int]bool)
	visited := map[string]bool{key(root): true}
	queue := []*models.Resource{root}
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		for _, i := range ds.bySubject[key(r)] {
			t := ds.Triples[i]
			if t.Object.IsLiteral() {
				continue
			}
			included[i] = true
			if k := key(t.Object); !visited[k] {
				visited[k] = true
				queue = append(queue, t.Object)
			}
		}
	}
	for i, t := range ds.Triples {
		if included[i] {
			m.Triples = append(m.Triples, ds.annotateTriple(t))
		}
	}
	return m, nil
}

// ClassModel returns every class with the properties whose domain it is and
// the subclass axioms between classes. The root is accepted for symmetry with
// the backend, which scopes the model to an ontology; a dataset holds one.
func (ds *Dataset) ClassModel(ctx context.Context, _ *models.Resource) (*ClassModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var classes []*models.Resource
	seen := make(map[string]bool)
	addClass := func(r *models.Resource) {
		if r.IsLiteral() {
			return
		}
		k := key(r)
		if seen[k] {
			return
		}
		if a := ds.annotate(r); a.Role == models.RoleClass {
			seen[k] = true
			classes = append(classes, a)
		}
	}
	for _, r := range ds.Resources {
		addClass(r)
	}
	for _, t := range ds.Triples {
		addClass(t.Subject)
	}

	ranges := make(map[string]*models.Resource)
	for _, t := range ds.Triples {
		if t.Predicate.Value == models.RDFSRange && !t.Object.IsLiteral() {
			ranges[key(t.Subject)] = ds.annotate(t.Object)
		}
	}

	m := &ClassModel{}
	props := make(map[string][]PropertyRange)
	for _, t := range ds.Triples {
		switch t.Predicate.Value {
		case models.RDFSDomain:
			if seen[key(t.Object)] {
				k := key(t.Object)
				props[k] = append(props[k], PropertyRange{
					Property: ds.annotate(t.Subject),
					Range:    ranges[key(t.Subject)],
				})
			}
		case models.RDFSSubClassOf:
			if seen[key(t.Subject)] && !t.Object.IsLiteral() {
				m.SubClassOf = append(m.SubClassOf, SubClassAxiom{
					Sub:   ds.annotate(t.Subject),
					Super: ds.annotate(t.Object),
				})
			}
		}
	}
	for _, c := range classes {
		m.Classes = append(m.Classes, ClassInfo{Class: c, Properties: props[key(c)]})
	}
	return m, nil
}
