// Package compiler defines the pure transformation from function source text
// to a deployable artifact. Compilation does no I/O and keeps no shared
// state, and identical input always yields identical output; the publish
// pipeline relies on that for content hashing and idempotence.
package compiler

import (
	"fmt"
)

// CompileError describes a rejected source text, carrying the offending
// location for diagnostics.
type CompileError struct {
	Line    int
	Column  int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// Compiler turns function source text into an executable artifact.
type Compiler interface {
	// Compile returns the artifact text, or a *CompileError when the
	// source is syntactically invalid.
	Compile(source string) (string, error)
}

const modulePreamble = "\"use strict\";\n"

// ScriptCompiler validates function source and emits a strict-mode module
// artifact. It stands in for an external toolchain; anything implementing
// Compiler can replace it.
type ScriptCompiler struct{}

// NewScript returns a ScriptCompiler.
func NewScript() *ScriptCompiler {
	return &ScriptCompiler{}
}

func (c *ScriptCompiler) Compile(source string) (string, error) {
	if err := checkSyntax(source); err != nil {
		return "", err
	}
	return modulePreamble + source, nil
}

type openDelim struct {
	ch   byte
	line int
	col  int
}

var closers = map[byte]byte{')': '(', ']': '[', '}': '{'}

// checkSyntax scans the source for unbalanced delimiters and unterminated
// string literals, skipping comments. It is a syntactic gate, not a full
// parser.
func checkSyntax(source string) error {
	if len(source) == 0 {
		return &CompileError{Line: 1, Column: 1, Message: "empty function source"}
	}

	var stack []openDelim
	line, col := 1, 0

	for i := 0; i < len(source); i++ {
		ch := source[i]
		if ch == '\n' {
			line++
			col = 0
			continue
		}
		col++

		switch ch {
		case '/':
			if i+1 < len(source) && source[i+1] == '/' {
				for i < len(source) && source[i] != '\n' {
					i++
				}
				line++
				col = 0
			} else if i+1 < len(source) && source[i+1] == '*' {
				openLine, openCol := line, col
				i += 2
				col += 2
				for {
					if i+1 >= len(source) {
						return &CompileError{Line: openLine, Column: openCol, Message: "unterminated block comment"}
					}
					if source[i] == '*' && source[i+1] == '/' {
						i++
						col++
						break
					}
					if source[i] == '\n' {
						line++
						col = 0
					} else {
						col++
					}
					i++
				}
			}
		case '\'', '"', '`':
			quote := ch
			openLine, openCol := line, col
			terminated := false
			for i++; i < len(source); i++ {
				col++
				if source[i] == '\\' {
					i++
					col++
					continue
				}
				if source[i] == '\n' {
					if quote != '`' {
						break
					}
					line++
					col = 0
					continue
				}
				if source[i] == quote {
					terminated = true
					break
				}
			}
			if !terminated {
				return &CompileError{Line: openLine, Column: openCol, Message: "unterminated string literal"}
			}
		case '(', '[', '{':
			stack = append(stack, openDelim{ch: ch, line: line, col: col})
		case ')', ']', '}':
			want := closers[ch]
			if len(stack) == 0 || stack[len(stack)-1].ch != want {
				return &CompileError{Line: line, Column: col, Message: fmt.Sprintf("unexpected %q", ch)}
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) > 0 {
		open := stack[len(stack)-1]
		return &CompileError{Line: open.line, Column: open.col, Message: fmt.Sprintf("unclosed %q", open.ch)}
	}
	return nil
}
