package processor

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/stream"
	"github.com/kbukum/flowkit/validation"
)

// Metadata keys the builtin predicates read. Providers that list files or
// objects set them.
const (
	MetaName         = "name"
	MetaSize         = "size"
	MetaContentType  = "content_type"
	MetaPageCount    = "page_count"
	MetaDuration     = "duration_seconds"
	MetaLanguage     = "language"
	MetaLanguageConf = "language_confidence"
	MetaCreated      = "created_at"
	MetaLastModified = "last_modified"
)

func registerBuiltinPredicates(r *Registry) {
	r.RegisterPredicate("always", newAlways)
	r.RegisterPredicate("metadata_equals", newMetadataEquals)
	r.RegisterPredicate("has_metadata", newHasMetadata)
	r.RegisterPredicate("content_type", newContentType)
	r.RegisterPredicate("file_extension", newFileExtension)
	r.RegisterPredicate("name_matches", newNameMatches)
	r.RegisterPredicate("size_above", newSizeAbove)
	r.RegisterPredicate("size_below", newSizeBelow)
	r.RegisterPredicate("page_count_above", newPageCountAbove)
	r.RegisterPredicate("duration_above", newDurationAbove)
	r.RegisterPredicate("language", newLanguage)
	r.RegisterPredicate("date_newer_than", newDateNewerThan)
	r.RegisterPredicate("field_equals", newFieldEquals)
	r.RegisterPredicate("divisible_by", newDivisibleBy)
}

func newAlways(params map[string]any) (Predicate, error) {
	var p struct {
		Value *bool `json:"value"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	result := p.Value == nil || *p.Value
	return PredicateFunc(func(context.Context, stream.Item) (bool, error) {
		return result, nil
	}), nil
}

func newMetadataEquals(params map[string]any) (Predicate, error) {
	var p struct {
		Key   string `json:"key" validate:"required"`
		Value any    `json:"value"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	return PredicateFunc(func(_ context.Context, item stream.Item) (bool, error) {
		v, ok := item.Meta(p.Key)
		return ok && equalValues(v, p.Value), nil
	}), nil
}

func newHasMetadata(params map[string]any) (Predicate, error) {
	var p struct {
		Key string `json:"key" validate:"required"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	return PredicateFunc(func(_ context.Context, item stream.Item) (bool, error) {
		_, ok := item.Meta(p.Key)
		return ok, nil
	}), nil
}

// newContentType matches the content_type metadata against a list of MIME
// types. "image/*" matches any image subtype.
func newContentType(params map[string]any) (Predicate, error) {
	var p struct {
		Types []string `json:"types" validate:"required,min=1"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	return PredicateFunc(func(_ context.Context, item stream.Item) (bool, error) {
		ct, ok := metaString(item, MetaContentType)
		if !ok {
			return false, nil
		}
		ct = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
		for _, t := range p.Types {
			t = strings.ToLower(t)
			if t == ct {
				return true, nil
			}
			if prefix, found := strings.CutSuffix(t, "/*"); found && strings.HasPrefix(ct, prefix+"/") {
				return true, nil
			}
		}
		return false, nil
	}), nil
}

func newFileExtension(params map[string]any) (Predicate, error) {
	var p struct {
		Extensions []string `json:"extensions" validate:"required,min=1"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(p.Extensions))
	for _, e := range p.Extensions {
		want[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return PredicateFunc(func(_ context.Context, item stream.Item) (bool, error) {
		name, ok := metaString(item, MetaName)
		if !ok {
			return false, nil
		}
		ext := strings.TrimPrefix(path.Ext(name), ".")
		return ext != "" && want[strings.ToLower(ext)], nil
	}), nil
}

// newNameMatches matches the base of the name metadata against a glob.
func newNameMatches(params map[string]any) (Predicate, error) {
	var p struct {
		Pattern string `json:"pattern" validate:"required"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	if _, err := path.Match(p.Pattern, ""); err != nil {
		return nil, errors.InvalidParams("name_matches: " + err.Error())
	}
	return PredicateFunc(func(_ context.Context, item stream.Item) (bool, error) {
		name, ok := metaString(item, MetaName)
		if !ok {
			return false, nil
		}
		matched, _ := path.Match(p.Pattern, path.Base(name))
		return matched, nil
	}), nil
}

type sizeParams struct {
	Bytes int64 `json:"bytes" validate:"gte=0"`
}

func newSizeAbove(params map[string]any) (Predicate, error) {
	var p sizeParams
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	return metaAbove(MetaSize, float64(p.Bytes)), nil
}

func newSizeBelow(params map[string]any) (Predicate, error) {
	var p sizeParams
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	return metaCompare(MetaSize, func(size float64) bool { return size < float64(p.Bytes) }), nil
}

func newPageCountAbove(params map[string]any) (Predicate, error) {
	var p struct {
		Pages int64 `json:"pages" validate:"gte=0"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	return metaAbove(MetaPageCount, float64(p.Pages)), nil
}

// newDurationAbove compares the duration_seconds metadata of audio or video
// items.
func newDurationAbove(params map[string]any) (Predicate, error) {
	var p struct {
		Seconds float64 `json:"seconds" validate:"gte=0"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	return metaAbove(MetaDuration, p.Seconds), nil
}

func metaAbove(key string, limit float64) Predicate {
	return metaCompare(key, func(v float64) bool { return v > limit })
}

// metaCompare reads a numeric metadata value. Items without it never match;
// a value of the wrong type is malformed.
func metaCompare(key string, match func(float64) bool) Predicate {
	return PredicateFunc(func(_ context.Context, item stream.Item) (bool, error) {
		v, ok := item.Meta(key)
		if !ok {
			return false, nil
		}
		n, ok := toFloat(v)
		if !ok {
			return false, errors.MalformedItem("numeric "+key+" metadata", v)
		}
		return match(n), nil
	})
}

// newLanguage matches the detected language code. When the detector also
// reported a confidence it must reach min_confidence, which defaults to 0.8.
func newLanguage(params map[string]any) (Predicate, error) {
	var p struct {
		Code          string   `json:"code" validate:"required"`
		MinConfidence *float64 `json:"min_confidence" validate:"omitempty,gte=0,lte=1"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	minConf := 0.8
	if p.MinConfidence != nil {
		minConf = *p.MinConfidence
	}
	return PredicateFunc(func(_ context.Context, item stream.Item) (bool, error) {
		lang, ok := metaString(item, MetaLanguage)
		if !ok || !strings.EqualFold(lang, p.Code) {
			return false, nil
		}
		v, ok := item.Meta(MetaLanguageConf)
		if !ok {
			return true, nil
		}
		conf, ok := toFloat(v)
		if !ok {
			return false, errors.MalformedItem("numeric "+MetaLanguageConf+" metadata", v)
		}
		return conf >= minConf, nil
	}), nil
}

// newDateNewerThan matches items whose created_at or last_modified metadata
// is after threshold. The threshold is an RFC 3339 time, a date, or an age
// such as "36h", "7d", "2w" or "1y" counted back from evaluation time.
func newDateNewerThan(params map[string]any) (Predicate, error) {
	var p struct {
		Field     string `json:"field" validate:"omitempty,oneof=created modified"`
		Threshold string `json:"threshold" validate:"required"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	key := MetaLastModified
	if p.Field == "created" {
		key = MetaCreated
	}
	cutoff, err := parseThreshold(p.Threshold)
	if err != nil {
		return nil, errors.InvalidParams("date_newer_than: " + err.Error())
	}
	return PredicateFunc(func(_ context.Context, item stream.Item) (bool, error) {
		v, ok := item.Meta(key)
		if !ok {
			return false, nil
		}
		t, ok := toTime(v)
		if !ok {
			return false, errors.MalformedItem("RFC 3339 "+key+" metadata", v)
		}
		return t.After(cutoff(time.Now())), nil
	}), nil
}

func parseThreshold(s string) (func(now time.Time) time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return func(time.Time) time.Time { return t }, nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return func(now time.Time) time.Time { return now.Add(-d) }, nil
	}
	if len(s) < 2 {
		return nil, fmt.Errorf("unrecognized threshold %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("unrecognized threshold %q", s)
	}
	switch s[len(s)-1] {
	case 'd':
		return func(now time.Time) time.Time { return now.AddDate(0, 0, -n) }, nil
	case 'w':
		return func(now time.Time) time.Time { return now.AddDate(0, 0, -7*n) }, nil
	case 'y':
		return func(now time.Time) time.Time { return now.AddDate(-n, 0, 0) }, nil
	}
	return nil, fmt.Errorf("unrecognized threshold %q", s)
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

// newFieldEquals compares a dotted field of a map payload.
func newFieldEquals(params map[string]any) (Predicate, error) {
	var p struct {
		Field string `json:"field" validate:"required"`
		Value any    `json:"value"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	return PredicateFunc(func(_ context.Context, item stream.Item) (bool, error) {
		if _, ok := item.Payload.(map[string]any); !ok {
			return false, errors.MalformedItem("object", item.Payload)
		}
		v, ok := lookupField(item.Payload, p.Field)
		return ok && equalValues(v, p.Value), nil
	}), nil
}

// newDivisibleBy tests an integer payload.
func newDivisibleBy(params map[string]any) (Predicate, error) {
	var p struct {
		Divisor int64 `json:"divisor" validate:"required,ne=0"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	return PredicateFunc(func(_ context.Context, item stream.Item) (bool, error) {
		n, ok := toInt(item.Payload)
		if !ok {
			return false, errors.MalformedItem("integer", item.Payload)
		}
		return n%p.Divisor == 0, nil
	}), nil
}

func metaString(item stream.Item, key string) (string, bool) {
	v, ok := item.Meta(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
