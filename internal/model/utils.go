package model

import "time"

// TruncateString cắt chuỗi xuống độ dài tối đa cho phép
// nếu chuỗi dài hơn giới hạn
func TruncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength]
}

// DayBucket cắt timestamp về nửa đêm UTC, dùng làm khóa chuỗi thời gian
func DayBucket(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
