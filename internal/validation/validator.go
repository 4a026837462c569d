package validation

import (
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator. Field errors are keyed by their JSON or form names.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})

	// a merged cart may not name the same product twice
	v.RegisterStructValidation(mergeCartStructValidation, MergeCartRequest{})

	return v
}

func mergeCartStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(MergeCartRequest)

	seen := make(map[int64]bool, len(req.Items))
	for _, it := range req.Items {
		if seen[it.ProductID] {
			sl.ReportError(req.Items, "items", "Items", "unique_product",
				fmt.Sprintf("product %d listed more than once", it.ProductID))
			return
		}
		seen[it.ProductID] = true
	}
}
