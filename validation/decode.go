package validation

import (
	"github.com/go-viper/mapstructure/v2"

	"github.com/kbukum/flowkit/errors"
)

// Decode copies untyped params into out (a pointer to a struct) and validates
// the result. Keys are matched against json tags, scalar types are converted
// leniently ("5" decodes into an int), and keys that match no field are
// rejected so typos surface at compile time.
func Decode(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return errors.Internal(err)
	}
	if err := dec.Decode(params); err != nil {
		return errors.InvalidParams(err.Error()).WithCause(err)
	}
	return Validate(out)
}
