// Package core turns uploaded CSV files into stored, queryable datasets.
//
// An upload flows through one pipeline:
//
//  1. [HashFile] the raw bytes; a known hash is rejected with [ErrDuplicateFile].
//  2. [ParseCSV] into a [Table] of nullable [Value] cells.
//  3. [Validate] drops empty rows, renames repeated columns and reports
//     all-null columns into the dataset's error log.
//  4. [AnalyzeMissing] and [InferSchema] describe the cleaned table.
//  5. [BuildRows] hashes every row and flags in-file duplicates.
//  6. [BuildColumnIndex] summarises every column.
//
// Everything from step 5 on is written in one [StoreTx], so a failed upload
// leaves no trace. [Service] wraps [Ingest] with concurrency limits,
// timeouts, logging and the optional raw-file [Archive].
//
// Errors map to user-facing codes through [MapError].
package core
