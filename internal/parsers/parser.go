package parsers

import (
	"context"

	"mca-revenue-engine/internal/models"
)

// ParseStatementFile parses path with the parser matching its extension.
// config only applies to CSV and may be nil.
func ParseStatementFile(ctx context.Context, path string, config *StatementParserConfig) (*models.Statement, *ParseStats, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, nil, err
	}

	if format == FormatJSON {
		return NewJSONStatementParser().ParseFile(ctx, path)
	}

	parser, err := NewCSVStatementParser(config)
	if err != nil {
		return nil, nil, err
	}
	return parser.ParseFile(ctx, path)
}
