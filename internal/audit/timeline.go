package audit

import "time"

// Record is one authorised operation captured after the response was written.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Operation string    `json:"operation"`
	Resource  string    `json:"resource"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	IP        string    `json:"ip"`
	Status    int       `json:"status"`
	UserAgent string    `json:"userAgent"`
	At        time.Time `json:"timestamp"`
}

// TimelineFilters holds filters for the audit timeline.
type TimelineFilters struct {
	From      time.Time
	To        time.Time
	Actor     string
	Resource  string
	Operation string
	Page      int
	PageSize  int
}

// ListParams is the repository-level query derived from TimelineFilters.
type ListParams struct {
	From      time.Time
	To        time.Time
	Actor     string
	Resource  string
	Operation string
	Offset    int
	// Limit <= 0 returns every matching record.
	Limit int
}

// PagingInfo stores simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"hasNext"`
	PageSize int  `json:"pageSize"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []Record   `json:"records"`
	Paging PagingInfo `json:"paging"`
}
