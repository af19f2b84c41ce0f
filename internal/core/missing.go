package core

// MaxMissingPositions caps the row positions listed per column.
const MaxMissingPositions = 100

// AnalyzeMissing reports null counts for the cleaned table.
//
// Positions are the rows' original 0-based positions, the same numbering
// row_number and the empty_rows issue use.
func AnalyzeMissing(t Table) MissingReport {
	report := MissingReport{ColumnsWithMissing: make(map[string]ColumnMissing)}
	rows := t.NumRows()

	for _, c := range t.Columns {
		var count int
		var positions []int
		for i, v := range c.Values {
			if !v.IsNull() {
				continue
			}
			count++
			if len(positions) < MaxMissingPositions {
				positions = append(positions, t.Position(i))
			}
		}
		if count == 0 {
			continue
		}

		report.HasMissing = true
		report.TotalMissingCells += count
		report.ColumnsWithMissing[c.Name] = ColumnMissing{
			Count:      count,
			Percentage: float64(count) / float64(rows) * 100,
			Positions:  positions,
		}
	}

	return report
}
