package core

import "time"

// ColumnKind is the runtime type a column carries after parsing.
// Parsing is string-preserving, so CSV columns are ColumnString unless a
// caller pre-types them; ColumnUnknown asks the inferencer to look at values.
type ColumnKind int

const (
	ColumnUnknown ColumnKind = iota
	ColumnString
	ColumnInteger
	ColumnFloat
	ColumnBool
	ColumnDatetime
	ColumnMixed
)

// LogicalType is the schema type recorded for a column.
type LogicalType string

const (
	TypeInteger  LogicalType = "integer"
	TypeFloat    LogicalType = "float"
	TypeBoolean  LogicalType = "boolean"
	TypeDatetime LogicalType = "datetime"
	TypeString   LogicalType = "string"
)

// Schema maps column name to its logical type.
type Schema map[string]LogicalType

// Column is a named, ordered sequence of cells.
type Column struct {
	Name   string
	Kind   ColumnKind
	Values []Value
}

// Table is an ordered set of equal-length columns.
//
// Positions holds the original 0-based position of each row in the parsed
// input, so row numbers survive empty-row removal. A nil Positions means
// rows are numbered by their index.
type Table struct {
	Columns   []Column
	Positions []int
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return len(t.Positions)
	}
	return len(t.Columns[0].Values)
}

// Position returns the original position of row i.
func (t *Table) Position(i int) int {
	if t.Positions == nil {
		return i
	}
	return t.Positions[i]
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Row is a single row keyed by column name.
type Row map[string]Value

// Row builds the column-name keyed map for row i.
func (t *Table) Row(i int) Row {
	row := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		row[c.Name] = c.Values[i]
	}
	return row
}

// Issue types recorded in a dataset's error log.
const (
	IssueEmptyRows        = "empty_rows"
	IssueDuplicateColumns = "duplicate_columns"
	IssueAllNullColumns   = "all_null_columns"
)

// ValidationIssue is one entry in a dataset's error log.
type ValidationIssue struct {
	Type      string   `json:"type"`
	Count     int      `json:"count,omitempty"`
	Positions []int    `json:"positions,omitempty"`
	Columns   []string `json:"columns,omitempty"`
	Action    string   `json:"action,omitempty"`
}

// ColumnMissing is the null summary of one column.
type ColumnMissing struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	Positions  []int   `json:"positions"`
}

// MissingReport summarises nulls across a table.
// Columns without nulls are absent from ColumnsWithMissing.
type MissingReport struct {
	HasMissing         bool                     `json:"has_missing"`
	TotalMissingCells  int                      `json:"total_missing_cells"`
	ColumnsWithMissing map[string]ColumnMissing `json:"columns_with_missing"`
}

// DatasetMetadata describes one ingested file.
type DatasetMetadata struct {
	ID               int64
	Name             string
	OriginalFilename string
	FileHash         string
	RowCount         int
	ColumnCount      int
	Schema           Schema
	HasMissingValues bool
	MissingReport    MissingReport
	ErrorLog         []ValidationIssue
	DuplicateCount   int
	Description      string
	UploadedAt       time.Time
	LastModified     time.Time
}

// DataRow is one persisted row of a dataset.
type DataRow struct {
	DatasetID        int64
	RowNumber        int
	Data             Row
	RowHash          string
	HasMissingValues bool
	IsDuplicate      bool
}

// ColumnIndexEntry is the per-column summary built at ingestion.
type ColumnIndexEntry struct {
	DatasetID     int64       `json:"-"`
	ColumnName    string      `json:"column_name"`
	DataType      LogicalType `json:"data_type"`
	DistinctCount int         `json:"distinct_count"`
	MinValue      *string     `json:"min_value"`
	MaxValue      *string     `json:"max_value"`
	SampleValues  []Value     `json:"sample_values"`
}

// RowQuery selects a page of rows in row_number order.
type RowQuery struct {
	Limit             int
	Offset            int
	ExcludeDuplicates bool
}

// IngestRequest is one upload to ingest.
type IngestRequest struct {
	FileName    string
	DatasetName string // generated from FileName when empty
	Description string
	Data        []byte
}

// IngestResult summarises a committed ingestion.
type IngestResult struct {
	IngestID       string
	Dataset        DatasetMetadata
	RowsInserted   int
	DuplicateRows  int
	ErrorsDetected int
	Duration       time.Duration
}
