package service

import "time"

func testTime() time.Time {
	return time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
}
