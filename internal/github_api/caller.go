// Gói githubapi cung cấp một caller cho GitHub REST API, để lấy dữ liệu
// repository, traffic và stargazer. Nó xử lý xác thực bằng mã thông báo
// truy cập nếu được cung cấp. Các method trả về danh sách dùng chung một
// cơ chế phân trang dựa trên Link header.

package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/thep200/github-metrics/cfg"
	"github.com/thep200/github-metrics/pkg/log"
)

const acceptStarJson = "application/vnd.github.star+json"

type Caller struct {
	Logger log.Logger
	Config *cfg.Config
	client *http.Client
}

func NewCaller(logger log.Logger, config *cfg.Config) *Caller {
	return &Caller{
		Logger: logger,
		Config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HandleRateLimit xử lý rate limit dựa trên thông tin từ header API
func (c *Caller) HandleRateLimit(ctx context.Context, resp *http.Response) (bool, error) {
	rateRemaining := resp.Header.Get("X-RateLimit-Remaining")

	if resp.StatusCode == http.StatusForbidden && rateRemaining == "0" {
		resetTimeStr := resp.Header.Get("X-RateLimit-Reset")
		resetTimeInt, err := strconv.ParseInt(resetTimeStr, 10, 64)

		if err != nil {
			// Nếu không thể parse được thời gian reset, sử dụng cấu hình mặc định
			waitTime := time.Duration(c.Config.GithubApi.RateLimitResetMin) * time.Minute
			c.Logger.Warn(ctx, "Rate limit hit! Không thể xác định thời gian reset chính xác. Chờ %v phút", c.Config.GithubApi.RateLimitResetMin)
			return true, fmt.Errorf("đạt giới hạn API, chờ %v", waitTime)
		}

		resetTime := time.Unix(resetTimeInt, 0)
		waitTime := time.Until(resetTime)
		if waitTime < 0 {
			waitTime = time.Duration(c.Config.GithubApi.RateLimitResetMin) * time.Minute
		}

		c.Logger.Warn(ctx, "Rate limit hit! GitHub API rate limit đạt ngưỡng. Cần chờ %v đến %v để tiếp tục",
			waitTime.Round(time.Second), resetTime.Format(time.RFC3339))

		return true, fmt.Errorf("đạt giới hạn API, thời gian reset: %v", resetTime.Format(time.RFC3339))
	}

	return false, nil
}

// call thực hiện một request, trả về body và Link header
func (c *Caller) call(ctx context.Context, url string, accept string, out interface{}) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.Logger.Error(ctx, "Cannot request: %v", err)
		return "", err
	}

	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", "github-metrics")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	if c.Config.GithubApi.AccessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("token %s", c.Config.GithubApi.AccessToken))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.Logger.Error(ctx, "cannot send request: %v", err)
		return "", err
	}
	defer resp.Body.Close()

	// Kiểm tra rate limit
	isRateLimited, rateLimitErr := c.HandleRateLimit(ctx, resp)
	if isRateLimited {
		return "", rateLimitErr
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("github api %s: status %d: %s", url, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", err
	}

	return resp.Header.Get("Link"), nil
}

// callPaged lặp qua các trang kích thước cố định cho đến khi Link header
// không còn rel="next"
func callPaged[T any](c *Caller, ctx context.Context, path string, accept string) ([]T, error) {
	perPage := c.Config.GithubApi.PageSize
	if perPage <= 0 {
		perPage = 100
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	items := []T{}
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s%s%sper_page=%d&page=%d", c.Config.GithubApi.ApiUrl, path, sep, perPage, page)

		var dat []T
		link, err := c.call(ctx, url, accept, &dat)
		if err != nil {
			return nil, err
		}
		items = append(items, dat...)

		if !strings.Contains(link, `rel="next"`) {
			break
		}
	}

	return items, nil
}

// Repos trả về tất cả repository của user đã xác thực
// https://docs.github.com/en/rest/repos/repos#list-repositories-for-the-authenticated-user
func (c *Caller) Repos(ctx context.Context) ([]RepoResponse, error) {
	return callPaged[RepoResponse](c, ctx, "/user/repos?type=owner", "")
}

// OpenPullsCount trả về số lượng pull request đang mở của một repository
func (c *Caller) OpenPullsCount(ctx context.Context, fullName string) (int64, error) {
	pulls, err := callPaged[PullResponse](c, ctx, fmt.Sprintf("/repos/%s/pulls?state=open", fullName), "")
	if err != nil {
		return 0, err
	}
	return int64(len(pulls)), nil
}

// TrafficViews trả về lượt xem 14 ngày gần nhất, chia theo ngày
// https://docs.github.com/en/rest/metrics/traffic
func (c *Caller) TrafficViews(ctx context.Context, fullName string) (*TrafficViewsResponse, error) {
	views := &TrafficViewsResponse{}
	url := fmt.Sprintf("%s/repos/%s/traffic/views", c.Config.GithubApi.ApiUrl, fullName)
	if _, err := c.call(ctx, url, "", views); err != nil {
		return nil, err
	}
	return views, nil
}

// TrafficClones trả về lượt clone 14 ngày gần nhất, chia theo ngày
func (c *Caller) TrafficClones(ctx context.Context, fullName string) (*TrafficClonesResponse, error) {
	clones := &TrafficClonesResponse{}
	url := fmt.Sprintf("%s/repos/%s/traffic/clones", c.Config.GithubApi.ApiUrl, fullName)
	if _, err := c.call(ctx, url, "", clones); err != nil {
		return nil, err
	}
	return clones, nil
}

// PopularPaths trả về các đường dẫn phổ biến (không chia theo ngày)
func (c *Caller) PopularPaths(ctx context.Context, fullName string) ([]PopularPathResponse, error) {
	var paths []PopularPathResponse
	url := fmt.Sprintf("%s/repos/%s/traffic/popular/paths", c.Config.GithubApi.ApiUrl, fullName)
	if _, err := c.call(ctx, url, "", &paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// PopularReferrers trả về các nguồn truy cập phổ biến (không chia theo ngày)
func (c *Caller) PopularReferrers(ctx context.Context, fullName string) ([]ReferrerResponse, error) {
	var referrers []ReferrerResponse
	url := fmt.Sprintf("%s/repos/%s/traffic/popular/referrers", c.Config.GithubApi.ApiUrl, fullName)
	if _, err := c.call(ctx, url, "", &referrers); err != nil {
		return nil, err
	}
	return referrers, nil
}

// LatestReleaseTag trả về tag của release mới nhất, dùng cho thông báo cập nhật
func (c *Caller) LatestReleaseTag(ctx context.Context, fullName string) (string, error) {
	release := &ReleaseResponse{}
	url := fmt.Sprintf("%s/repos/%s/releases/latest", c.Config.GithubApi.ApiUrl, fullName)
	if _, err := c.call(ctx, url, "", release); err != nil {
		return "", err
	}
	return release.TagName, nil
}

// Stargazers trả về toàn bộ danh sách stargazer kèm thời điểm star
func (c *Caller) Stargazers(ctx context.Context, fullName string) ([]StargazerResponse, error) {
	return callPaged[StargazerResponse](c, ctx, fmt.Sprintf("/repos/%s/stargazers", fullName), acceptStarJson)
}
