package errors

import "escargot/pkg/source"

// Position represents a specific location in the source code.
// Line and column are 1-based for display; byte offsets are 0-based and
// are what the bytecode source-location side table stores.
type Position struct {
	Line     int                // 1-based line number
	Column   int                // 1-based column number (byte offset within the line plus one)
	StartPos int                // 0-based byte offset of the start of the span
	EndPos   int                // 0-based byte offset of the end of the span (exclusive)
	Source   *source.SourceFile // Source file the span belongs to
}
