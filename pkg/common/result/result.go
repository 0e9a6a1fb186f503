package result

import (
	"encoding/json"
	"fmt"
	"io"

	"sigs.k8s.io/yaml"
)

// Status is embedded into the result document of every operation.
type Status struct {
	Changed  bool     `json:"changed"`
	Msg      string   `json:"msg,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func Changed(format string, args ...interface{}) *Status {
	return &Status{Changed: true, Msg: fmt.Sprintf(format, args...)}
}

func Unchanged(format string, args ...interface{}) *Status {
	return &Status{Changed: false, Msg: fmt.Sprintf(format, args...)}
}

// IsChanged lets the runner observe results of any operation.
func (s *Status) IsChanged() bool {
	return s.Changed
}

// Warn records a warning which is also surfaced to the caller.
func (s *Status) Warn(format string, args ...interface{}) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// Failure is printed when an operation returns an error.
type Failure struct {
	Failed bool   `json:"failed"`
	Msg    string `json:"msg"`
}

func NewFailure(err error) *Failure {
	return &Failure{Failed: true, Msg: err.Error()}
}

// Print writes the document as indented JSON or as YAML.
func Print(w io.Writer, format string, doc interface{}) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case "", "json":
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	case "yaml":
		data, err = yaml.Marshal(doc)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = w.Write(data)
	return err
}
