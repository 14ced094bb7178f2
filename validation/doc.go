// Package validation checks configuration structs with struct tags and decodes
// untyped node parameters into typed structs.
//
// # Struct Tag Validation
//
//	type chunkParams struct {
//	    Size int `json:"size" validate:"required,gt=0"`
//	}
//	err := validation.Validate(p)
//
// # Parameter Decoding
//
//	var p chunkParams
//	err := validation.Decode(node.Params, &p)
//
// Both return an *errors.AppError whose details list the offending fields.
package validation
