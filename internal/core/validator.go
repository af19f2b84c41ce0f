package core

// validator.go cleans a parsed table before it is analysed and stored.
//
// Rules run in a fixed order:
//  1. Rows where every cell is null are removed.
//  2. Repeated column names are renamed with a per-name counter ("x.1", "x.2").
//  3. Columns with no non-null value are reported but kept.
//
// Problems are recorded as ValidationIssue entries; Validate never fails.

import "strconv"

// AllNullAction is recorded for all-null columns, which stay in the table.
const AllNullAction = "kept"

// Validate returns the cleaned table and the ordered error log.
// The input table is not modified.
func Validate(t Table) (Table, []ValidationIssue) {
	issues := []ValidationIssue{}

	cleaned, removed := dropEmptyRows(t)
	if len(removed) > 0 {
		issues = append(issues, ValidationIssue{
			Type:      IssueEmptyRows,
			Count:     len(removed),
			Positions: removed,
		})
	}

	if repeated := dedupColumnNames(cleaned.Columns); len(repeated) > 0 {
		issues = append(issues, ValidationIssue{
			Type:    IssueDuplicateColumns,
			Columns: repeated,
		})
	}

	// A column of zero values is vacuously all-null; only report real ones.
	if cleaned.NumRows() > 0 {
		var allNull []string
		for _, c := range cleaned.Columns {
			if nullCount(c.Values) == len(c.Values) {
				allNull = append(allNull, c.Name)
			}
		}
		if len(allNull) > 0 {
			issues = append(issues, ValidationIssue{
				Type:    IssueAllNullColumns,
				Columns: allNull,
				Action:  AllNullAction,
			})
		}
	}

	return cleaned, issues
}

// dropEmptyRows copies t without rows whose cells are all null and returns
// the original positions of the dropped rows.
func dropEmptyRows(t Table) (Table, []int) {
	n := t.NumRows()
	keep := make([]int, 0, n)
	var removed []int

	for i := 0; i < n; i++ {
		if isEmptyRow(t, i) {
			removed = append(removed, t.Position(i))
			continue
		}
		keep = append(keep, i)
	}

	out := Table{
		Columns:   make([]Column, len(t.Columns)),
		Positions: make([]int, len(keep)),
	}
	for j, i := range keep {
		out.Positions[j] = t.Position(i)
	}
	for ci, c := range t.Columns {
		values := make([]Value, len(keep))
		for j, i := range keep {
			values[j] = c.Values[i]
		}
		out.Columns[ci] = Column{Name: c.Name, Kind: c.Kind, Values: values}
	}
	return out, removed
}

func isEmptyRow(t Table, i int) bool {
	for _, c := range t.Columns {
		if !c.Values[i].IsNull() {
			return false
		}
	}
	return true
}

// dedupColumnNames renames repeated column names in place and returns the
// names that repeated, one entry per renamed occurrence.
//
// The first occurrence keeps its name. Later ones get ".N" where N counts
// occurrences of that base name, skipping any candidate already taken.
func dedupColumnNames(cols []Column) []string {
	taken := make(map[string]bool, len(cols))
	for _, c := range cols {
		taken[c.Name] = true
	}

	seen := make(map[string]bool, len(cols))
	counters := make(map[string]int)
	var repeated []string

	for i := range cols {
		name := cols[i].Name
		if !seen[name] {
			seen[name] = true
			continue
		}

		repeated = append(repeated, name)
		for {
			counters[name]++
			candidate := name + "." + strconv.Itoa(counters[name])
			if !taken[candidate] {
				taken[candidate] = true
				seen[candidate] = true
				cols[i].Name = candidate
				break
			}
		}
	}
	return repeated
}

func nullCount(values []Value) int {
	n := 0
	for _, v := range values {
		if v.IsNull() {
			n++
		}
	}
	return n
}
