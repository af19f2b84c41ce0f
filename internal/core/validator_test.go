package core

import (
	"reflect"
	"testing"
)

func strs(cells ...string) []Value {
	out := make([]Value, len(cells))
	for i, c := range cells {
		if c != "" {
			out[i] = StringValue(c)
		}
	}
	return out
}

func TestValidate_DropsEmptyRows(t *testing.T) {
	in := Table{Columns: []Column{
		{Name: "a", Kind: ColumnString, Values: strs("1", "", "3", "")},
		{Name: "b", Kind: ColumnString, Values: strs("x", "", "", "")},
	}}

	out, issues := Validate(in)

	if out.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", out.NumRows())
	}
	if !reflect.DeepEqual(out.Positions, []int{0, 2}) {
		t.Errorf("positions = %v, want [0 2]", out.Positions)
	}
	if len(issues) != 1 || issues[0].Type != IssueEmptyRows {
		t.Fatalf("issues = %+v", issues)
	}
	if issues[0].Count != 2 || !reflect.DeepEqual(issues[0].Positions, []int{1, 3}) {
		t.Errorf("empty_rows issue = %+v", issues[0])
	}
	if in.NumRows() != 4 {
		t.Error("input table must not be modified")
	}
}

func TestValidate_RenamesDuplicateColumns(t *testing.T) {
	tests := []struct {
		name      string
		columns   []string
		wantNames []string
		wantRepl  []string
	}{
		{
			name:      "single repeat",
			columns:   []string{"x", "x", "y"},
			wantNames: []string{"x", "x.1", "y"},
			wantRepl:  []string{"x"},
		},
		{
			name:      "counter per name",
			columns:   []string{"x", "y", "x", "y", "x"},
			wantNames: []string{"x", "y", "x.1", "y.1", "x.2"},
			wantRepl:  []string{"x", "y", "x"},
		},
		{
			name:      "skips taken candidate",
			columns:   []string{"x", "x.1", "x"},
			wantNames: []string{"x", "x.1", "x.2"},
			wantRepl:  []string{"x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Table{}
			for _, n := range tt.columns {
				in.Columns = append(in.Columns, Column{Name: n, Kind: ColumnString, Values: strs("v")})
			}

			out, issues := Validate(in)

			if got := out.ColumnNames(); !reflect.DeepEqual(got, tt.wantNames) {
				t.Errorf("names = %v, want %v", got, tt.wantNames)
			}
			if len(issues) != 1 || issues[0].Type != IssueDuplicateColumns {
				t.Fatalf("issues = %+v", issues)
			}
			if !reflect.DeepEqual(issues[0].Columns, tt.wantRepl) {
				t.Errorf("repeated = %v, want %v", issues[0].Columns, tt.wantRepl)
			}
			if in.Columns[1].Name != tt.columns[1] {
				t.Error("input column names must not change")
			}
		})
	}
}

func TestValidate_ReportsAllNullColumns(t *testing.T) {
	in := Table{Columns: []Column{
		{Name: "a", Kind: ColumnString, Values: strs("1", "2")},
		{Name: "empty", Kind: ColumnString, Values: strs("", "")},
	}}

	out, issues := Validate(in)

	if len(out.Columns) != 2 {
		t.Error("all-null columns are kept")
	}
	want := []ValidationIssue{{Type: IssueAllNullColumns, Columns: []string{"empty"}, Action: AllNullAction}}
	if !reflect.DeepEqual(issues, want) {
		t.Errorf("issues = %+v, want %+v", issues, want)
	}
}

func TestValidate_IssueOrder(t *testing.T) {
	in := Table{Columns: []Column{
		{Name: "a", Kind: ColumnString, Values: strs("1", "")},
		{Name: "a", Kind: ColumnString, Values: strs("", "")},
	}}

	_, issues := Validate(in)

	var types []string
	for _, is := range issues {
		types = append(types, is.Type)
	}
	want := []string{IssueEmptyRows, IssueDuplicateColumns, IssueAllNullColumns}
	if !reflect.DeepEqual(types, want) {
		t.Errorf("issue order = %v, want %v", types, want)
	}
	if !reflect.DeepEqual(issues[2].Columns, []string{"a.1"}) {
		t.Errorf("all-null columns use renamed names, got %v", issues[2].Columns)
	}
}

func TestValidate_CleanTable(t *testing.T) {
	in := Table{Columns: []Column{{Name: "a", Kind: ColumnString, Values: strs("1")}}}
	_, issues := Validate(in)
	if issues == nil || len(issues) != 0 {
		t.Errorf("issues = %#v, want empty non-nil slice", issues)
	}
}

func TestValidate_ZeroRows(t *testing.T) {
	in := Table{Columns: []Column{{Name: "a", Kind: ColumnString, Values: []Value{}}}}
	out, issues := Validate(in)
	if out.NumRows() != 0 || len(issues) != 0 {
		t.Errorf("rows = %d, issues = %+v", out.NumRows(), issues)
	}
}
