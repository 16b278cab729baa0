package logger

import "strconv"

// Status is the error type returned by every fallible pipeline operation.
// Code is an HTTP-style classification, Unit identifies the pipeline unit
// (language/segment/chunk) so a failed unit can be re-run alone.
type Status struct {
	Code    int
	Message string
	Err     error
	Unit    string
}

func (s *Status) Error() string {
	return s.String()
}

func (s *Status) String() string {
	var result string
	result = strconv.Itoa(s.Code)
	if s.Unit != "" {
		result += " [" + s.Unit + "]"
	}
	if s.Message != "" {
		result += " " + s.Message
	}
	if s.Err != nil {
		result += ": " + s.Err.Error()
	}
	return result
}
