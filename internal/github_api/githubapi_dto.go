// Gói githubapi cung cấp các đối tượng truyền dữ liệu cho dự án
// Chuyển đổi phản hồi GitHub REST API thành các cấu trúc Go

package githubapi

import "time"

type RepoResponse struct {
	Id              int64  `json:"id"`
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	Description     string `json:"description"`
	StargazersCount int64  `json:"stargazers_count"`
	ForksCount      int64  `json:"forks_count"`
	WatchersCount   int64  `json:"watchers_count"`
	OpenIssuesCount int64  `json:"open_issues_count"`
	Fork            bool   `json:"fork"`
	Archived        bool   `json:"archived"`
}

type TrafficDaily struct {
	Timestamp time.Time `json:"timestamp"`
	Uniques   int64     `json:"uniques"`
	Count     int64     `json:"count"`
}

type TrafficViewsResponse struct {
	Uniques int64          `json:"uniques"`
	Count   int64          `json:"count"`
	Views   []TrafficDaily `json:"views"`
}

type TrafficClonesResponse struct {
	Uniques int64          `json:"uniques"`
	Count   int64          `json:"count"`
	Clones  []TrafficDaily `json:"clones"`
}

type PopularPathResponse struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Count   int64  `json:"count"`
	Uniques int64  `json:"uniques"`
}

type ReferrerResponse struct {
	Referrer string `json:"referrer"`
	Count    int64  `json:"count"`
	Uniques  int64  `json:"uniques"`
}

type PullResponse struct {
	Id     int64  `json:"id"`
	Number int64  `json:"number"`
	State  string `json:"state"`
}

type ReleaseResponse struct {
	Id      int64  `json:"id"`
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
}

// Yêu cầu accept header "application/vnd.github.star+json"
// để API trả về kèm thời điểm starred_at
type StargazerResponse struct {
	StarredAt time.Time `json:"starred_at"`
}
