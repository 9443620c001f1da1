package epub

import (
	"encoding/xml"
	"errors"
	"fmt"
)

// StructuralError signals malformed markup in one of the input documents.
// It is fatal: the run aborts before any index artifact is touched.
type StructuralError struct {
	Path string
	Line int
	Err  error
}

func (e *StructuralError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Err.Error())
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// structural wraps a parse or read failure, pulling the line number out of
// the underlying xml error when there is one.
func structural(path string, err error) *StructuralError {
	se := &StructuralError{Path: path, Err: err}
	var syntax *xml.SyntaxError
	if errors.As(err, &syntax) {
		se.Line = syntax.Line
		se.Err = errors.New(syntax.Msg)
	}
	return se
}

// ConsistencyWarning records a problem recovered locally via a documented
// fallback. The run still succeeds but the document should be looked at.
type ConsistencyWarning struct {
	Path   string
	Reason string
}

func (w ConsistencyWarning) String() string {
	return w.Path + ": " + w.Reason
}
