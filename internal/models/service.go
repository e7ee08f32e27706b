package models

type Service struct {
	ServiceID       string `json:"service_id"`
	CompanyID       string `json:"company_id"`
	Name            string `json:"name"`
	AvgMinutes      int    `json:"avg_minutes"`
	SupportsUrgency bool   `json:"supports_urgency"`
}

type Post struct {
	PostID    string `json:"post_id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
}
