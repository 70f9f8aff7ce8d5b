package redisbackend

import (
	"strconv"
	"time"
)

func secondsToDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
