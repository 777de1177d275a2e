package rule

import (
	"fmt"
	"strings"
)

// FormatError reports configuration errors found while fixing a rule or
// condition: bad signatures, unresolved variables, a missing oracle.
// Exploration cannot proceed on a grammar that produced one.
type FormatError struct {
	Subject  string
	Messages []string
}

func (e *FormatError) Error() string {
	if len(e.Messages) == 1 {
		return fmt.Sprintf("%s: %s", e.Subject, e.Messages[0])
	}
	return fmt.Sprintf("%s: %d errors: %s", e.Subject, len(e.Messages), strings.Join(e.Messages, "; "))
}

type formatErrors struct {
	subject  string
	messages []string
}

func (f *formatErrors) add(format string, args ...interface{}) {
	f.messages = append(f.messages, fmt.Sprintf(format, args...))
}

func (f *formatErrors) merge(err error) {
	if err == nil {
		return
	}
	if fe, ok := err.(*FormatError); ok {
		for _, m := range fe.Messages {
			f.messages = append(f.messages, fe.Subject+": "+m)
		}
		return
	}
	f.messages = append(f.messages, err.Error())
}

func (f *formatErrors) err() error {
	if len(f.messages) == 0 {
		return nil
	}
	return &FormatError{Subject: f.subject, Messages: f.messages}
}
