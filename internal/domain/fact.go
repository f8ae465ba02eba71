package domain

// WriteMode controls how a fact batch is written to its table.
type WriteMode int

const (
	// WriteAppend creates the table if needed and appends rows.
	WriteAppend WriteMode = iota
	// WriteReplace drops and recreates the table before writing.
	WriteReplace
)

func (m WriteMode) String() string {
	if m == WriteReplace {
		return "replace"
	}
	return "append"
}
