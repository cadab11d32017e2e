// Package template holds the fixed whitelist of canned query templates and
// renders concrete queries from them. Every template targets one downstream
// provider via the workflow runner and differs only in its query-graph file,
// its drug/disease node-id mapping, and its CQS configuration block.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/TranslatorSRI/cqs/internal/scoring"
	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

// CQSBlock is the per-template configuration carried inside the template file.
type CQSBlock struct {
	// ResultsLimit truncates the template's rewritten results when set.
	ResultsLimit *int `json:"results_limit,omitempty"`
	// AttributeTypeIDs lists attribute ids copied from an existing edge onto
	// the synthesized aggregate edge.
	AttributeTypeIDs []string `json:"attribute_type_ids,omitempty"`
	// EdgeSources is the provenance attached to the synthesized edge.
	EdgeSources []trapi.RetrievalSource `json:"edge_sources,omitempty"`
}

// file is the on-disk template shape: a TRAPI message plus the cqs block.
type file struct {
	Message trapi.Message `json:"message"`
	CQS     CQSBlock      `json:"cqs,omitempty"`
}

// Template is one canned query. Immutable after Load.
type Template struct {
	// Name is the stable template name; the store file lives at
	// <dir>/<Name>/<Name>.json.
	Name string
	// DrugNodeID and DiseaseNodeID are the template-internal query-graph keys
	// corresponding to the caller's subject (drug) and object (disease)
	// positions.
	DrugNodeID    string
	DiseaseNodeID string
	// Score computes the composite score for a bag of observations.
	Score scoring.Func
	// CQS is the configuration block read from the template file.
	CQS CQSBlock

	raw []byte
}

// Rendered is the outcome of Render: the concrete outgoing query and the
// attribute constraint stripped from it, to be enforced locally once the
// upstream response returns.
type Rendered struct {
	Query      trapi.Query
	Constraint *trapi.AttributeConstraint
}

// Render loads a fresh copy of the template message, sets the disease-position
// node's ids to the given curies, and strips edge attribute constraints from
// the outgoing query, keeping the first one found for post-filtering.
func (t *Template) Render(curies []string) (Rendered, error) {
	var f file
	if err := json.Unmarshal(t.raw, &f); err != nil {
		return Rendered{}, fmt.Errorf("op=template.render name=%s: %w", t.Name, err)
	}
	msg := f.Message
	if msg.QueryGraph == nil {
		return Rendered{}, fmt.Errorf("op=template.render name=%s: template has no query_graph", t.Name)
	}
	node, ok := msg.QueryGraph.Nodes[t.DiseaseNodeID]
	if !ok {
		return Rendered{}, fmt.Errorf("op=template.render name=%s: disease node %q not in template", t.Name, t.DiseaseNodeID)
	}
	if curies == nil {
		curies = []string{}
	}
	node.IDs = curies
	msg.QueryGraph.Nodes[t.DiseaseNodeID] = node

	var constraint *trapi.AttributeConstraint
	for _, k := range sortedKeys(msg.QueryGraph.Edges) {
		e := msg.QueryGraph.Edges[k]
		if len(e.AttributeConstraints) > 0 {
			if constraint == nil {
				c := e.AttributeConstraints[0]
				constraint = &c
			}
			e.AttributeConstraints = nil
			msg.QueryGraph.Edges[k] = e
		}
	}
	return Rendered{Query: trapi.Query{Message: msg}, Constraint: constraint}, nil
}

func sortedKeys(m map[string]trapi.QEdge) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// entry declares one whitelisted template: its name and the node-id roles
// inside its query graph. The drug/disease mappings are historical and differ
// per provider family.
type entry struct {
	name    string
	drug    string
	disease string
	score   scoring.Func
}

var whitelist = []entry{
	{name: "mvp1-template1-clinical-kps", drug: "n3", disease: "n0", score: scoring.Composite},
	{name: "mvp1-template3-openpredict", drug: "n0", disease: "n1", score: scoring.Composite},
	{name: "mvp1-template5-spoke-chembl", drug: "n00", disease: "n01", score: scoring.Composite},
	{name: "mvp1-template6-molepro-chembl", drug: "n00", disease: "n01", score: scoring.Composite},
	{name: "mvp1-template7-rtxkg2-semmed", drug: "n0", disease: "n1", score: scoring.Composite},
	{name: "mvp1-template9-service-provider-chembl", drug: "n00", disease: "n01", score: scoring.Composite},
}

// Registry is the ordered, process-wide immutable template list.
type Registry struct {
	templates []*Template
}

// Load reads every whitelisted template from dir. Any missing or malformed
// file is a fatal configuration error reported at startup.
func Load(dir string) (*Registry, error) {
	r := &Registry{}
	for _, e := range whitelist {
		path := filepath.Join(dir, e.name, e.name+".json")
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("op=template.load name=%s: %w", e.name, err)
		}
		var f file
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("op=template.load name=%s: malformed template: %w", e.name, err)
		}
		if f.Message.QueryGraph == nil {
			return nil, fmt.Errorf("op=template.load name=%s: template has no query_graph", e.name)
		}
		if _, ok := f.Message.QueryGraph.Nodes[e.disease]; !ok {
			return nil, fmt.Errorf("op=template.load name=%s: disease node %q not in template", e.name, e.disease)
		}
		r.templates = append(r.templates, &Template{
			Name:          e.name,
			DrugNodeID:    e.drug,
			DiseaseNodeID: e.disease,
			Score:         e.score,
			CQS:           f.CQS,
			raw:           raw,
		})
	}
	return r, nil
}

// LoadFrom builds a registry from explicit templates; used by tests.
func LoadFrom(templates ...*Template) *Registry {
	return &Registry{templates: templates}
}

// New constructs a Template from raw file bytes; used by tests and tools.
func New(name, drugNodeID, diseaseNodeID string, score scoring.Func, raw []byte) (*Template, error) {
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("op=template.new name=%s: %w", name, err)
	}
	return &Template{Name: name, DrugNodeID: drugNodeID, DiseaseNodeID: diseaseNodeID, Score: score, CQS: f.CQS, raw: raw}, nil
}

// Templates returns the registry's templates in registration order.
func (r *Registry) Templates() []*Template { return r.templates }

// Len returns the number of registered templates.
func (r *Registry) Len() int { return len(r.templates) }
