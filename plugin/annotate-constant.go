package plugin

/*
	Constant

	Labels every chunk with the same quality string and no alerts.

	~~~ Plugin Reference Implementation ~~~
*/

const DefaultQuality = "Good"

type ConstantAnnotator struct {
	Quality string
}

// Annotate ignores its input. Alerts come back as an empty, non-nil slice
// so the wire format always carries an array.
func (a *ConstantAnnotator) Annotate(chunk [][]float64, fatigue int) (string, []string) {
	q := a.Quality
	if q == "" {
		q = DefaultQuality
	}
	return q, []string{}
}

func (a *ConstantAnnotator) Type() string { return "constant" }
