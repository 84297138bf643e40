package resources

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/validation/field"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
)

// DecodeManifests reads a stream of YAML or JSON documents separated by
// "---". Empty documents are skipped.
func DecodeManifests(r io.Reader) ([]*unstructured.Unstructured, error) {
	dec := utilyaml.NewYAMLOrJSONDecoder(r, 4096)
	var out []*unstructured.Unstructured
	for i := 0; ; i++ {
		m := map[string]interface{}{}
		if err := dec.Decode(&m); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("decode document %d: %w", i, err)
		}
		if len(m) == 0 {
			continue
		}
		out = append(out, &unstructured.Unstructured{Object: m})
	}
}

// Flatten replaces every List document by its items.
func Flatten(docs []*unstructured.Unstructured) []*unstructured.Unstructured {
	var out []*unstructured.Unstructured
	for _, doc := range docs {
		if !isList(doc) {
			out = append(out, doc)
			continue
		}
		items, _, _ := unstructured.NestedSlice(doc.Object, "items")
		var nested []*unstructured.Unstructured
		for _, item := range items {
			if m, ok := item.(map[string]interface{}); ok {
				nested = append(nested, &unstructured.Unstructured{Object: m})
			}
		}
		out = append(out, Flatten(nested)...)
	}
	return out
}

func isList(doc *unstructured.Unstructured) bool {
	if doc == nil || !strings.HasSuffix(doc.GetKind(), "List") {
		return false
	}
	_, ok := doc.Object["items"]
	return ok
}

// Validate reports every document lacking kind or metadata.name. Paths are
// indexed by document, e.g. "items[2].metadata.name".
func Validate(docs []*unstructured.Unstructured) error {
	if len(docs) == 0 {
		return field.ErrorList{field.Required(field.NewPath("items"), "no resources given")}.ToAggregate()
	}
	var errs field.ErrorList
	for i, doc := range docs {
		errs = append(errs, validateDocument(doc, field.NewPath("items").Index(i))...)
	}
	return errs.ToAggregate()
}
