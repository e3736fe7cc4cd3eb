package plugin

import "fmt"

// Annotators is a global map of Annotator plugin factories.
// Factories are stateless; each session gets its own instance.
var Annotators = map[string]func() Annotator{
	"constant": func() Annotator {
		return &ConstantAnnotator{Quality: DefaultQuality}
	},
	"trend": func() Annotator {
		return NewTrendAnnotator()
	},
}

func AnnotatorLookup(name string) (Annotator, error) {
	if name == "" {
		name = "constant"
	}
	factory, ok := Annotators[name]
	if !ok {
		return nil, fmt.Errorf("unknown annotator: %s", name)
	}
	return factory(), nil
}
