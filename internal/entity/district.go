package entity

// District is a sub-municipal unit; the unit of iteration for batch queries.
type District struct {
	Name string `json:"name" yaml:"name"`
	Code string `json:"code" yaml:"code"`
}

// DateRange is an inclusive range in the portal's era calendar (YYY-MM-DD).
// Values are passed through unchanged.
type DateRange struct {
	Start string `json:"start_date"`
	End   string `json:"end_date"`
}

// DistrictFailed is the per-district count reported when a district query
// fails. The stored district result keeps a record count of 0 and says
// failed in its status.
const DistrictFailed = -1

// DistrictStatus mirrors the status column of district_query_results.
type DistrictStatus string

const (
	DistrictStatusSuccess DistrictStatus = "success"
	DistrictStatusNoData  DistrictStatus = "no_data"
	DistrictStatusFailed  DistrictStatus = "failed"
)

// DistrictResult mirrors the `district_query_results` PostgreSQL table schema.
type DistrictResult struct {
	BatchID      int64
	CityName     string
	DistrictCode string
	DistrictName string
	RecordCount  int
	Status       DistrictStatus
	ErrorMessage string
}
