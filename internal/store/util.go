package store

import "strconv"

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
