// Package trapi holds the Translator Reasoner API (TRAPI) message types the
// service reads and writes at its boundary, plus the pure merge/rank algebra
// over those messages. The schema itself is external; only the fields this
// service touches are modeled, with omitempty tags so round-tripped messages
// stay close to their wire form.
package trapi

// KnowledgeType values recognized on a query edge.
const (
	KnowledgeTypeInferred = "inferred"
	KnowledgeTypeLookup   = "lookup"
)

// Query is the body of POST /query.
type Query struct {
	Message   Message `json:"message"`
	LogLevel  *string `json:"log_level,omitempty"`
	Workflow  []any   `json:"workflow,omitempty"`
	Submitter *string `json:"submitter,omitempty"`
}

// AsyncQuery is the body of POST /asyncquery: a Query plus a callback URL.
type AsyncQuery struct {
	Callback  string  `json:"callback"`
	Message   Message `json:"message"`
	LogLevel  *string `json:"log_level,omitempty"`
	Workflow  []any   `json:"workflow,omitempty"`
	Submitter *string `json:"submitter,omitempty"`
}

// Query converts the async envelope to the synchronous form used by the
// pipeline.
func (aq *AsyncQuery) Query() Query {
	return Query{Message: aq.Message, LogLevel: aq.LogLevel, Workflow: aq.Workflow, Submitter: aq.Submitter}
}

// Response is what the service (and the workflow runner) returns.
type Response struct {
	Message        Message    `json:"message"`
	Status         *string    `json:"status,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Logs           []LogEntry `json:"logs,omitempty"`
	Workflow       []any      `json:"workflow,omitempty"`
	BiolinkVersion *string    `json:"biolink_version,omitempty"`
	SchemaVersion  *string    `json:"schema_version,omitempty"`
}

// LogEntry is a TRAPI log record carried on responses.
type LogEntry struct {
	Timestamp string `json:"timestamp,omitempty"`
	Level     string `json:"level,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Message bundles a query graph with the knowledge accumulated to answer it.
type Message struct {
	QueryGraph     *QueryGraph     `json:"query_graph,omitempty"`
	KnowledgeGraph *KnowledgeGraph `json:"knowledge_graph,omitempty"`
	// Results stays un-omitted: an empty result set serializes as [], which
	// callers distinguish from a message that carries no results key at all.
	Results         []Result            `json:"results"`
	AuxiliaryGraphs map[string]AuxGraph `json:"auxiliary_graphs,omitempty"`
}

// QueryGraph is the caller-declared shape of the question.
type QueryGraph struct {
	Nodes map[string]QNode `json:"nodes"`
	Edges map[string]QEdge `json:"edges"`
}

// QNode is a query-graph node.
type QNode struct {
	IDs               []string              `json:"ids,omitempty"`
	Categories        []string              `json:"categories,omitempty"`
	SetInterpretation *string               `json:"set_interpretation,omitempty"`
	Constraints       []AttributeConstraint `json:"constraints,omitempty"`
}

// QEdge is a query-graph edge.
type QEdge struct {
	Subject              string                `json:"subject"`
	Object               string                `json:"object"`
	Predicates           []string              `json:"predicates,omitempty"`
	KnowledgeType        *string               `json:"knowledge_type,omitempty"`
	AttributeConstraints []AttributeConstraint `json:"attribute_constraints,omitempty"`
	QualifierConstraints []any                 `json:"qualifier_constraints,omitempty"`
}

// AttributeConstraint restricts edges by one of their attributes. Value is
// JSON-typed: null, bool, number, string, or array.
type AttributeConstraint struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Not      bool    `json:"not,omitempty"`
	Operator string  `json:"operator"`
	Value    any     `json:"value"`
	UnitID   *string `json:"unit_id,omitempty"`
	UnitName *string `json:"unit_name,omitempty"`
}

// KnowledgeGraph maps opaque ids to nodes and edges.
type KnowledgeGraph struct {
	Nodes map[string]Node `json:"nodes"`
	Edges map[string]Edge `json:"edges"`
}

// Node is a knowledge-graph node keyed by curie.
type Node struct {
	Name       *string     `json:"name,omitempty"`
	Categories []string    `json:"categories,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// Edge is a knowledge-graph edge.
type Edge struct {
	Subject    string            `json:"subject"`
	Predicate  string            `json:"predicate"`
	Object     string            `json:"object"`
	Sources    []RetrievalSource `json:"sources,omitempty"`
	Attributes []Attribute       `json:"attributes,omitempty"`
	Qualifiers []Qualifier       `json:"qualifiers,omitempty"`
}

// Qualifier refines an edge predicate.
type Qualifier struct {
	QualifierTypeID string `json:"qualifier_type_id"`
	QualifierValue  string `json:"qualifier_value"`
}

// RetrievalSource records edge provenance.
type RetrievalSource struct {
	ResourceID          string   `json:"resource_id"`
	ResourceRole        string   `json:"resource_role"`
	UpstreamResourceIDs []string `json:"upstream_resource_ids,omitempty"`
	SourceRecordURLs    []string `json:"source_record_urls,omitempty"`
}

// Resource roles used on RetrievalSource.
const (
	ResourceRolePrimary    = "primary_knowledge_source"
	ResourceRoleAggregator = "aggregator_knowledge_source"
	ResourceRoleSupporting = "supporting_data_source"
)

// Attribute is a dynamically typed edge/node annotation; sub-attributes nest.
type Attribute struct {
	AttributeTypeID       string      `json:"attribute_type_id"`
	Value                 any         `json:"value"`
	ValueTypeID           *string     `json:"value_type_id,omitempty"`
	OriginalAttributeName *string     `json:"original_attribute_name,omitempty"`
	ValueURL              *string     `json:"value_url,omitempty"`
	AttributeSource       *string     `json:"attribute_source,omitempty"`
	Description           *string     `json:"description,omitempty"`
	Attributes            []Attribute `json:"attributes,omitempty"`
}

// Result binds query-graph node ids to knowledge-graph entities, with one or
// more scored analyses.
type Result struct {
	NodeBindings map[string][]NodeBinding `json:"node_bindings"`
	Analyses     []Analysis               `json:"analyses"`
}

// NodeBinding points a query node at a knowledge-graph node.
type NodeBinding struct {
	ID         string      `json:"id"`
	QueryID    *string     `json:"query_id,omitempty"`
	Attributes []Attribute `json:"attributes"`
}

// Analysis is a scored provenance bundle attached to a result.
type Analysis struct {
	ResourceID    string                   `json:"resource_id"`
	EdgeBindings  map[string][]EdgeBinding `json:"edge_bindings"`
	Score         *float64                 `json:"score,omitempty"`
	ScoringMethod *string                  `json:"scoring_method,omitempty"`
	SupportGraphs []string                 `json:"support_graphs,omitempty"`
	Attributes    []Attribute              `json:"attributes,omitempty"`
}

// EdgeBinding points an analysis at a knowledge-graph edge.
type EdgeBinding struct {
	ID         string      `json:"id"`
	Attributes []Attribute `json:"attributes"`
}

// AuxGraph is a named bundle of knowledge-graph edge ids.
type AuxGraph struct {
	Edges      []string    `json:"edges"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// NewKnowledgeGraph returns an empty knowledge graph with non-nil maps.
func NewKnowledgeGraph() *KnowledgeGraph {
	return &KnowledgeGraph{Nodes: map[string]Node{}, Edges: map[string]Edge{}}
}
