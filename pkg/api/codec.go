package api

import (
	"encoding/json"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

// DecodeObject decodes a single JSON document. Numbers become int64 or
// float64 so the result is safe for the unstructured helpers.
func DecodeObject(data []byte) (*unstructured.Unstructured, error) {
	m := map[string]interface{}{}
	if err := utiljson.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return &unstructured.Unstructured{Object: m}, nil
}

// DecodeList decodes a list response. List items usually omit kind and
// apiVersion; they are filled in from the descriptor.
func DecodeList(data []byte, desc Descriptor) (*unstructured.UnstructuredList, error) {
	m := map[string]interface{}{}
	if err := utiljson.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s list: %w", desc, err)
	}
	rawItems, _, err := unstructured.NestedSlice(m, "items")
	if err != nil {
		return nil, fmt.Errorf("decode %s list: %w", desc, err)
	}
	delete(m, "items")

	list := &unstructured.UnstructuredList{Object: m}
	for i, raw := range rawItems {
		item, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("decode %s list: item %d is %T", desc, i, raw)
		}
		u := unstructured.Unstructured{Object: item}
		if u.GetKind() == "" {
			u.SetKind(desc.Kind)
		}
		if u.GetAPIVersion() == "" {
			u.SetAPIVersion(desc.APIVersion())
		}
		list.Items = append(list.Items, u)
	}
	return list, nil
}

// EncodeObject encodes a document for a request body.
func EncodeObject(doc *unstructured.Unstructured) ([]byte, error) {
	data, err := json.Marshal(doc.Object)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", doc.GetKind(), doc.GetName(), err)
	}
	return data, nil
}
