package resources

import (
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
)

// convert decodes the whole wrapped document into a typed API struct.
func convert(o *Object, kind string, out interface{}) error {
	if o.Kind() != kind {
		return fmt.Errorf("%s %s is not a %s", o.Kind(), o.Name(), kind)
	}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(o.doc.Object, out); err != nil {
		return fmt.Errorf("convert %s %s: %w", kind, o.Name(), err)
	}
	return nil
}
