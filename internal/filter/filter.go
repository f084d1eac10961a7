// Package filter quyết định repository nào được thu thập và hiển thị.
// Rules là chuỗi phân tách bằng dấu phẩy: "owner/name", "owner/*",
// "!owner/name", "!fork", "!archived", "*". Rule không hợp lệ bị bỏ qua.
package filter

import "strings"

type RepoFilter struct {
	IncludeRepos []string
	ExcludeRepos []string
	ExcludeForks bool
	ExcludeArchs bool
	DefaultAll   bool
}

func NewRepoFilter(rules string) *RepoFilter {
	f := &RepoFilter{
		IncludeRepos: make([]string, 0),
		ExcludeRepos: make([]string, 0),
		ExcludeForks: true,
		ExcludeArchs: true,
	}

	for _, rule := range strings.Split(strings.ToLower(strings.TrimSpace(rules)), ",") {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}

		if rule == "*" {
			f.DefaultAll = true
			continue
		}

		if rule == "!fork" {
			f.ExcludeForks = true
			continue
		}

		if rule == "!archived" {
			f.ExcludeArchs = true
			continue
		}

		if strings.Count(rule, "/") != 1 {
			continue
		}

		if name, ok := strings.CutPrefix(rule, "!"); ok {
			f.ExcludeRepos = append(f.ExcludeRepos, name)
		} else {
			f.IncludeRepos = append(f.IncludeRepos, rule)
		}
	}

	// Nếu không có rule tên repo nào thì mặc định bao gồm tất cả
	if len(f.IncludeRepos) == 0 && len(f.ExcludeRepos) == 0 {
		f.DefaultAll = true
	}

	return f
}

// IsIncluded kiểm tra repository có được thu thập hay không. Thứ tự đánh giá:
// exclude rules trước include rules, exact match trước wildcard. Wildcard
// không áp dụng cho fork/archived, chỉ exact match mới ghi đè được.
func (f *RepoFilter) IsIncluded(fullName string, isFork bool, isArchived bool) bool {
	repo := strings.ToLower(strings.TrimSpace(fullName))
	if repo == "" ||
		strings.Count(repo, "/") != 1 ||
		strings.HasPrefix(repo, "/") ||
		strings.HasSuffix(repo, "/") {
		return false
	}

	for _, set := range []struct {
		verdict bool
		rules   []string
	}{
		{false, f.ExcludeRepos},
		{true, f.IncludeRepos},
	} {
		for _, rule := range set.rules {
			if rule == repo {
				return set.verdict
			}

			// Bỏ qua wildcard cho fork / archived
			if isFork || isArchived {
				continue
			}

			if owner, ok := strings.CutSuffix(rule, "/*"); ok && strings.HasPrefix(repo, owner+"/") {
				return set.verdict
			}
		}
	}

	if f.ExcludeForks && isFork {
		return false
	}

	if f.ExcludeArchs && isArchived {
		return false
	}

	return f.DefaultAll
}
