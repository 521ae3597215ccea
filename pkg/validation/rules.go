package validation

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/goliatone/go-schemaform/pkg/model"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Rule tokens understood by ParseRules.
const (
	RuleRequired = "required"
	RuleMin      = "min"
	RuleMax      = "max"
	RuleLen      = "len"
	RuleEmail    = "email"
	RuleURL      = "url"
	RuleNumeric  = "numeric"
	RuleInteger  = "integer"
	RuleAlpha    = "alpha"
	RuleAlphaNum = "alphanum"
	RulePattern  = "pattern"
	RuleIn       = "in"
)

type tokenCheck func(value any, ev model.EvalCtx) string

type tokenSpec struct {
	needsArg bool
	build    func(arg string) (tokenCheck, error)
}

var tokenSpecs = map[string]tokenSpec{
	RuleRequired: {build: func(string) (tokenCheck, error) { return checkRequired, nil }},
	RuleMin:      {needsArg: true, build: func(arg string) (tokenCheck, error) { return boundCheck(arg, true) }},
	RuleMax:      {needsArg: true, build: func(arg string) (tokenCheck, error) { return boundCheck(arg, false) }},
	RuleLen:      {needsArg: true, build: lengthCheck},
	RuleEmail:    {build: stringCheck(msgEmail, func(s string) bool { return emailPattern.MatchString(s) })},
	RuleURL:      {build: stringCheck(msgURL, validURL)},
	RuleNumeric:  {build: func(string) (tokenCheck, error) { return checkNumeric, nil }},
	RuleInteger:  {build: func(string) (tokenCheck, error) { return checkInteger, nil }},
	RuleAlpha:    {build: stringCheck(msgAlpha, onlyRunes(unicode.IsLetter))},
	RuleAlphaNum: {build: stringCheck(msgAlphaNum, onlyRunes(func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }))},
	RulePattern:  {needsArg: true, build: patternCheck},
	RuleIn:       {needsArg: true, build: inCheck},
}

// KnownRules lists the tokens ParseRules accepts.
func KnownRules() []string {
	keys := lo.Keys(tokenSpecs)
	sort.Strings(keys)
	return keys
}

// ParseRules compiles a pipe-separated rule string such as
// "required|min:5|email". Tokens run in order and the first failure wins.
// Values that are empty and not required skip the remaining tokens. A
// pattern token consumes the rest of the string so expressions may contain
// '|'.
func ParseRules(raw string) (Checker, error) {
	var checks []namedCheck
	rest := strings.TrimSpace(raw)
	for rest != "" {
		var part string
		if strings.HasPrefix(strings.TrimSpace(rest), RulePattern+":") {
			part, rest = rest, ""
		} else if idx := strings.Index(rest, "|"); idx >= 0 {
			part, rest = rest[:idx], rest[idx+1:]
		} else {
			part, rest = rest, ""
		}
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, arg, hasArg := strings.Cut(part, ":")
		name = strings.ToLower(strings.TrimSpace(name))
		spec, ok := tokenSpecs[name]
		if !ok {
			return nil, &UnknownRuleError{Token: part}
		}
		if spec.needsArg && (!hasArg || strings.TrimSpace(arg) == "") {
			return nil, &RuleArgumentError{Token: name, Argument: arg, Err: fmt.Errorf("argument required")}
		}
		if !spec.needsArg && hasArg {
			return nil, &RuleArgumentError{Token: name, Argument: arg, Err: fmt.Errorf("no argument expected")}
		}
		check, err := spec.build(strings.TrimSpace(arg))
		if err != nil {
			return nil, &RuleArgumentError{Token: name, Argument: arg, Err: err}
		}
		checks = append(checks, namedCheck{name: name, check: check})
	}
	return dslChecker{checks: checks}, nil
}

type namedCheck struct {
	name  string
	check tokenCheck
}

type dslChecker struct {
	checks []namedCheck
}

func (dslChecker) Async() bool { return false }

func (c dslChecker) Check(_ context.Context, value any, ev model.EvalCtx) error {
	required := lo.ContainsBy(c.checks, func(nc namedCheck) bool { return nc.name == RuleRequired })
	if !required && isEmpty(value) {
		return nil
	}
	for _, nc := range c.checks {
		if msg := nc.check(value, ev); msg != "" {
			return &FieldError{Message: msg}
		}
	}
	return nil
}

func checkRequired(value any, ev model.EvalCtx) string {
	if isEmpty(value) {
		return localize(ev.Locale(), msgRequired)
	}
	return ""
}

func boundCheck(arg string, lower bool) (tokenCheck, error) {
	bound, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return nil, err
	}
	text := strconv.FormatFloat(bound, 'f', -1, 64)
	return func(value any, ev model.EvalCtx) string {
		measured, key, ok := measure(value, lower)
		if !ok {
			return ""
		}
		if (lower && measured < bound) || (!lower && measured > bound) {
			return localize(ev.Locale(), key, text)
		}
		return ""
	}, nil
}

// measure returns the quantity compared by min/max: rune length for strings,
// item count for slices and maps, the value itself for numbers.
func measure(value any, lower bool) (float64, string, bool) {
	pick := func(min, max string) string {
		if lower {
			return min
		}
		return max
	}
	if s, ok := value.(string); ok {
		return float64(utf8.RuneCountInString(s)), pick(msgMinLength, msgMaxLength), true
	}
	if n, ok := toNumber(value); ok {
		return n, pick(msgMinValue, msgMaxValue), true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return float64(rv.Len()), pick(msgMinItems, msgMaxItems), true
	}
	return 0, "", false
}

func lengthCheck(arg string) (tokenCheck, error) {
	want, err := strconv.Atoi(arg)
	if err != nil {
		return nil, err
	}
	return func(value any, ev model.EvalCtx) string {
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		if utf8.RuneCountInString(s) != want {
			return localize(ev.Locale(), msgLength, strconv.Itoa(want))
		}
		return ""
	}, nil
}

func stringCheck(key string, valid func(string) bool) func(string) (tokenCheck, error) {
	return func(string) (tokenCheck, error) {
		return func(value any, ev model.EvalCtx) string {
			s, ok := value.(string)
			if !ok || !valid(s) {
				return localize(ev.Locale(), key)
			}
			return ""
		}, nil
	}
}

func onlyRunes(allowed func(rune) bool) func(string) bool {
	return func(s string) bool {
		for _, r := range s {
			if !allowed(r) {
				return false
			}
		}
		return true
	}
}

func validURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func checkNumeric(value any, ev model.EvalCtx) string {
	if _, ok := toNumber(value); ok {
		return ""
	}
	if s, ok := value.(string); ok {
		if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return ""
		}
	}
	return localize(ev.Locale(), msgNumeric)
}

func checkInteger(value any, ev model.EvalCtx) string {
	if n, ok := toNumber(value); ok && n == math.Trunc(n) {
		return ""
	}
	if s, ok := value.(string); ok {
		if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return ""
		}
	}
	return localize(ev.Locale(), msgInteger)
}

func patternCheck(arg string) (tokenCheck, error) {
	re, err := regexp.Compile(arg)
	if err != nil {
		return nil, err
	}
	return func(value any, ev model.EvalCtx) string {
		if !re.MatchString(fmt.Sprint(value)) {
			return localize(ev.Locale(), msgPattern)
		}
		return ""
	}, nil
}

func inCheck(arg string) (tokenCheck, error) {
	allowed := lo.Map(strings.Split(arg, ","), func(s string, _ int) string { return strings.TrimSpace(s) })
	allowed = lo.Compact(allowed)
	joined := strings.Join(allowed, ", ")
	return func(value any, ev model.EvalCtx) string {
		if lo.Contains(allowed, fmt.Sprint(value)) {
			return ""
		}
		return localize(ev.Locale(), msgIn, joined)
	}, nil
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
