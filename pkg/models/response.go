package models

// Response is the envelope returned for every question, success or failure.
type Response struct {
	Answer       string    `json:"answer"`
	Data         []Row     `json:"data"`
	Query        string    `json:"query"`
	ChartTitle   string    `json:"chart_title"`
	QueryType    QueryType `json:"query_type"`
	IsTimeSeries bool      `json:"is_time_series"`
	ExportJobID  string    `json:"export_job_id,omitempty"`
}

// NewMessageResponse builds an envelope carrying only an answer.
func NewMessageResponse(answer string) *Response {
	return &Response{
		Answer:    answer,
		Data:      []Row{},
		QueryType: QueryTypeAnalytical,
	}
}
