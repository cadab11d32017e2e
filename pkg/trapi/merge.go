package trapi

// MergeMessage appends src's knowledge graph, results, and auxiliary graphs
// into dst. Node and edge keys collide last-writer-wins; upstream responses
// use globally opaque ids so collisions are rare and benign.
func MergeMessage(dst *Message, src Message) {
	if src.KnowledgeGraph != nil {
		if dst.KnowledgeGraph == nil {
			dst.KnowledgeGraph = NewKnowledgeGraph()
		}
		for k, n := range src.KnowledgeGraph.Nodes {
			dst.KnowledgeGraph.Nodes[k] = n
		}
		for k, e := range src.KnowledgeGraph.Edges {
			dst.KnowledgeGraph.Edges[k] = e
		}
	}
	if len(src.Results) > 0 {
		dst.Results = append(dst.Results, src.Results...)
	}
	if len(src.AuxiliaryGraphs) > 0 {
		if dst.AuxiliaryGraphs == nil {
			dst.AuxiliaryGraphs = map[string]AuxGraph{}
		}
		for k, g := range src.AuxiliaryGraphs {
			dst.AuxiliaryGraphs[k] = g
		}
	}
}

// MergeAll folds a list of response messages into dst in the given order and
// guarantees Results is non-nil afterwards, so an empty merge still yields
// "results": [].
func MergeAll(dst *Message, srcs []Message) {
	for _, s := range srcs {
		MergeMessage(dst, s)
	}
	if dst.Results == nil {
		dst.Results = []Result{}
	}
	if dst.KnowledgeGraph == nil {
		dst.KnowledgeGraph = NewKnowledgeGraph()
	}
}
