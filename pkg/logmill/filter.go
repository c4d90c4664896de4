package logmill

import (
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/logmill/pkg/logmill/expr"
)

// maxCachedPatterns bounds the regexp cache behind the matches operator.
const maxCachedPatterns = 1024

var (
	patterns      sync.Map // string -> *regexp.Regexp, nil when invalid
	patternsCount atomic.Int64
)

// compileFilter compiles a unit or receiver filter. On top of the
// expression language it provides the matches operator:
//
//	path matches '^/api/'
func compileFilter(src string) (*expr.Filter, error) {
	return expr.Compile(src, expr.WithCustomOperator("matches", matches))
}

// matches reports whether the string form of left matches the regular
// expression right. An invalid pattern or an absent field never matches.
func matches(left, right any) bool {
	pattern, ok := right.(string)
	if !ok || left == nil {
		return false
	}
	re := lookupPattern(pattern)
	if re == nil {
		return false
	}
	if s, ok := left.(string); ok {
		return re.MatchString(s)
	}
	return re.MatchString(fmt.Sprint(left))
}

func lookupPattern(pattern string) *regexp.Regexp {
	if v, ok := patterns.Load(pattern); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	if patternsCount.Load() < maxCachedPatterns {
		if _, loaded := patterns.LoadOrStore(pattern, re); !loaded {
			patternsCount.Add(1)
		}
	}
	return re
}
