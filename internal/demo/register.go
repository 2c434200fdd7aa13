package demo

import (
	"reflect"

	"github.com/flyxxxxx/prototype-sub001/internal/catalog"
	"github.com/flyxxxxx/prototype-sub001/internal/index"
)

// Classes lists the demo class names in sorted order.
var Classes = []string{
	index.QualifiedName(reflect.TypeOf((*Newsletter)(nil))),
	index.QualifiedName(reflect.TypeOf((*Shop)(nil))),
}

// Register adds the demo classes to c.
func Register(c *catalog.Catalog) error {
	return c.Register(&Shop{}, &Newsletter{})
}
