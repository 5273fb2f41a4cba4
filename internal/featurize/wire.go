package featurize

import (
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/features"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
)

// Featurized is the JSON form of a parsed example shared by the HTTP API, the
// RPC service, Kafka events and the parse cache.
type Featurized struct {
	Label      *float32             `json:"label,omitempty"`
	Tag        *string              `json:"tag,omitempty"`
	Namespaces []features.Namespace `json:"namespaces"`
}

// FromExample converts a parsed example into its wire form. Namespaces follow
// the order in which the line touched them.
func FromExample(ex *parser.Example) Featurized {
	out := Featurized{Label: ex.Label, Tag: ex.Tag}
	if ex.Features == nil {
		out.Namespaces = []features.Namespace{}
		return out
	}
	out.Namespaces = ex.Features.Namespaces()
	for i := range out.Namespaces {
		if out.Namespaces[i].Features == nil {
			out.Namespaces[i].Features = []features.Feature{}
		}
	}
	return out
}

// ToExample rebuilds a parsed example from its wire form.
func (f Featurized) ToExample() *parser.Example {
	return &parser.Example{
		Label:    f.Label,
		Tag:      f.Tag,
		Features: features.FromNamespaces(f.Namespaces),
	}
}

// NumFeatures counts features across all namespaces.
func (f Featurized) NumFeatures() int {
	n := 0
	for _, ns := range f.Namespaces {
		n += len(ns.Features)
	}
	return n
}
