package embedded

// scanner is satisfied by both *sql.Row and *sql.Rows, letting a single
// scanX helper serve a Get (one row) and a List (many rows) without
// duplicating the column list and Scan call.
type scanner interface {
	Scan(dest ...any) error
}
