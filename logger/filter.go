// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger // import "blitznote.com/src/sendfile/logger"

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"
)

// Filter maps targets to their minimum level.
type Filter struct {
	Default slog.Level
	Targets map[string]slog.Level
}

// Level of a target, falling back to the filter's default.
func (f Filter) Level(target string) slog.Level {
	if l, ok := f.Targets[target]; ok {
		return l
	}
	return f.Default
}

// ParseFilter reads comma-separated directives, each either a bare level
// or "target=level". Directives for targets unknown to us are ignored.
func ParseFilter(s string) (Filter, error) {
	f := Filter{Default: slog.LevelInfo, Targets: make(map[string]slog.Level, 2)}
	for _, directive := range strings.Split(s, ",") {
		directive = strings.TrimSpace(directive)
		if directive == "" {
			continue
		}
		target, level, found := strings.Cut(directive, "=")
		if !found {
			l, err := ParseLevel(directive)
			if err != nil {
				return f, err
			}
			f.Default = l
			continue
		}
		l, err := ParseLevel(level)
		if err != nil {
			return f, errors.Wrapf(err, "directive %q", directive)
		}
		switch target = strings.TrimSpace(target); target {
		case TargetCore, TargetHTTP:
			f.Targets[target] = l
		}
	}
	return f, nil
}

// ParseLevel understands the usual names, case-insensitive.
// "trace" is folded into debug, and "off" silences a target.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "off", "none":
		return slog.LevelError + 4, nil
	}
	return slog.LevelInfo, errors.Errorf("unknown log level %q", s)
}
