package schemas

const (
	// ReferenceNotFound marks a row whose run finished without a code.
	ReferenceNotFound = "N/A"
	// ReferenceError marks a row whose run failed outright.
	ReferenceError = "ERROR"
	// ReferenceColumn is appended to downloaded result documents.
	ReferenceColumn = "ReferenceNumber"
)

// Dataset is one parsed tabular upload: the first input row as ordered
// headers, every following row as a column-to-value mapping.
type Dataset struct {
	Headers  []string            `json:"headers"`
	Rows     []map[string]string `json:"rows"`
	Filename string              `json:"filename"`
}

// RowRecord is one dataset row plus its mutable extraction result. Reference
// starts empty and ends as the extracted code, ReferenceNotFound, or
// ReferenceError.
type RowRecord struct {
	Fields    map[string]string `json:"fields"`
	Reference string            `json:"reference"`
}

// ResultTable is the per-session automation state: ordered headers, ordered
// row records mutated in place as rows complete, and the original upload
// filename for the download hint.
type ResultTable struct {
	Headers  []string    `json:"headers"`
	Rows     []RowRecord `json:"rows"`
	Filename string      `json:"filename"`
}

// NewResultTable seeds a table from a parsed dataset, one record per row with
// an empty reference.
func NewResultTable(ds *Dataset) *ResultTable {
	rows := make([]RowRecord, len(ds.Rows))
	for i, r := range ds.Rows {
		rows[i] = RowRecord{Fields: r}
	}
	return &ResultTable{Headers: ds.Headers, Rows: rows, Filename: ds.Filename}
}
