package topology

// Columns is the physical row shape shared by HEAD, DELETE and HISTORY, in
// statement order.
var Columns = []string{
	"store_number",
	"txn",
	"txn_next",
	"ptxn",
	"uid",
	"puid",
	"hash",
	"change_count",
	"geo_grid",
	"flags",
	"id",
	"app_id",
	"author",
	"author_ts",
	"created_at",
	"updated_at",
	"type",
	"origin",
	"part",
	"feature",
	"geo",
	"geo_ref",
	"tags",
	"attachment",
}

// ColumnIndex returns the position of name in Columns, or -1.
func ColumnIndex(name string) int {
	for i, c := range Columns {
		if c == name {
			return i
		}
	}
	return -1
}
