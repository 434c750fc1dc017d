package db

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// insertPlaceholders builds the VALUES placeholders for a multi-row insert.
// SQLite uses "?", PostgreSQL uses "$n".
func insertPlaceholders(columns, rows int, numbered bool) string {
	var sb strings.Builder
	n := 1
	for i := 0; i < rows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < columns; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			if numbered {
				sb.WriteString("$")
				sb.WriteString(itoa(n))
				n++
			} else {
				sb.WriteString("?")
			}
		}
		sb.WriteString(")")
	}
	return sb.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// bucketSizeMs picks the aggregation bucket for time-grouped statistics so
// that wide ranges do not explode into thousands of rows.
func bucketSizeMs(tr TimeRange) int64 {
	duration := tr.To.Sub(tr.From)
	switch {
	case duration <= 2*time.Hour:
		return int64(time.Minute / time.Millisecond)
	case duration <= 6*time.Hour:
		return int64(5 * time.Minute / time.Millisecond)
	case duration <= 24*time.Hour:
		return int64(15 * time.Minute / time.Millisecond)
	case duration <= 7*24*time.Hour:
		return int64(time.Hour / time.Millisecond)
	default:
		return int64(24 * time.Hour / time.Millisecond)
	}
}

// CloseResource closes a resource and logs instead of returning the error.
func CloseResource(closer io.Closer) {
	if err := closer.Close(); err != nil {
		slog.Error("error closing resource", "err", err)
	}
}

func totalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	return pages
}
