package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// Keys whose integer values are selectors or addresses and read better in hex.
var hexKeys = []string{
	"kcap",
	"addr",
	"offset",
}

// formatAttr renders selector and address attributes as 0x-prefixed hex.
func formatAttr(a slog.Attr) slog.Attr {
	if !isHexKey(a.Key) {
		return a
	}
	switch a.Value.Kind() {
	case slog.KindUint64:
		return slog.String(a.Key, fmt.Sprintf("%#x", a.Value.Uint64()))
	case slog.KindInt64:
		if v := a.Value.Int64(); v >= 0 {
			return slog.String(a.Key, fmt.Sprintf("%#x", v))
		}
	}
	return a
}

func isHexKey(key string) bool {
	k := strings.ToLower(key)
	for _, h := range hexKeys {
		if k == h || strings.HasSuffix(k, "_"+h) {
			return true
		}
	}
	return false
}
