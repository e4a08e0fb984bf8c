package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes a sequence of single-key mappings, where the key names
// the element kind:
//
//	elements:
//	  - step: {id: s1}
//	  - decision: {id: d1, ref: decider}
//	  - split: {id: sp, flows: [...]}
//	  - flow: {id: f1, elements: [...]}
func (l *ElementList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: elements must be a sequence", value.Line)
	}
	out := make(ElementList, 0, len(value.Content))
	for _, item := range value.Content {
		if item.Kind != yaml.MappingNode || len(item.Content) != 2 {
			return fmt.Errorf("line %d: each element must be a mapping with exactly one of step, decision, split or flow", item.Line)
		}
		kind, body := item.Content[0].Value, item.Content[1]

		var elem ExecutionElement
		switch kind {
		case "step":
			elem = &Step{}
		case "decision":
			elem = &Decision{}
		case "split":
			elem = &Split{}
		case "flow":
			elem = &Flow{}
		default:
			return fmt.Errorf("line %d: unknown element kind %q", item.Line, kind)
		}
		if err := body.Decode(elem); err != nil {
			return err
		}
		out = append(out, elem)
	}
	*l = out
	return nil
}

// MarshalYAML encodes the list in the same single-key mapping form.
func (l ElementList) MarshalYAML() (interface{}, error) {
	out := make([]map[string]ExecutionElement, 0, len(l))
	for _, e := range l {
		var kind string
		switch e.(type) {
		case *Step:
			kind = "step"
		case *Decision:
			kind = "decision"
		case *Split:
			kind = "split"
		case *Flow:
			kind = "flow"
		default:
			return nil, fmt.Errorf("unsupported execution element %T", e)
		}
		out = append(out, map[string]ExecutionElement{kind: e})
	}
	return out, nil
}
