package piece

type (
	// PropertyType selects how a resolved value is cast and validated
	PropertyType string

	// Property describes one input of an action, trigger, or auth block
	Property struct {
		Name          string           `json:"name"`
		DisplayName   string           `json:"displayName"`
		Description   string           `json:"description,omitempty"`
		Type          PropertyType     `json:"type"`
		Required      bool             `json:"required"`
		Format        string           `json:"format,omitempty"`
		Default       any              `json:"defaultValue,omitempty"`
		StaticOptions []Option         `json:"options,omitempty"`
		Props         Properties       `json:"props,omitempty"`
		Options       OptionsFunc      `json:"-"`
		Validate      AuthValidateFunc `json:"-"`
	}

	// Properties maps property names to their definitions
	Properties map[string]*Property

	// Option is a selectable dropdown value
	Option struct {
		Label string `json:"label"`
		Value any    `json:"value"`
	}

	// OptionsFunc computes dropdown options from the other inputs
	OptionsFunc func(*PropertyContext) ([]Option, error)
)

const (
	ShortText         PropertyType = "SHORT_TEXT"
	LongText          PropertyType = "LONG_TEXT"
	Number            PropertyType = "NUMBER"
	Checkbox          PropertyType = "CHECKBOX"
	DateTime          PropertyType = "DATE_TIME"
	FileProp          PropertyType = "FILE"
	JSON              PropertyType = "JSON"
	Object            PropertyType = "OBJECT"
	Array             PropertyType = "ARRAY"
	StaticDropdown    PropertyType = "STATIC_DROPDOWN"
	Dropdown          PropertyType = "DROPDOWN"
	StaticMultiSelect PropertyType = "STATIC_MULTI_SELECT_DROPDOWN"
	MultiSelect       PropertyType = "MULTI_SELECT_DROPDOWN"
	SecretText        PropertyType = "SECRET_TEXT"
	BasicAuth         PropertyType = "BASIC_AUTH"
	CustomAuth        PropertyType = "CUSTOM_AUTH"
	OAuth2            PropertyType = "OAUTH2"
)

// NewProperty creates an optional property of the given type
func NewProperty(name string, typ PropertyType) *Property {
	return &Property{
		Name:        name,
		DisplayName: name,
		Type:        typ,
	}
}

// AsRequired returns a copy of the property that must be supplied
func (p *Property) AsRequired() *Property {
	res := *p
	res.Required = true
	return &res
}

// WithFormat returns a copy of the property validated against a format
// such as "url" or "email"
func (p *Property) WithFormat(format string) *Property {
	res := *p
	res.Format = format
	return &res
}

// WithDefault returns a copy of the property with a default value
func (p *Property) WithDefault(v any) *Property {
	res := *p
	res.Default = v
	return &res
}

// WithProps returns a copy of the property with nested properties, used by
// OBJECT, ARRAY and CUSTOM_AUTH
func (p *Property) WithProps(props Properties) *Property {
	res := *p
	res.Props = props
	return &res
}

// WithOptions returns a copy of the property with dynamic options
func (p *Property) WithOptions(fn OptionsFunc) *Property {
	res := *p
	res.Options = fn
	return &res
}

// WithStaticOptions returns a copy of the property with fixed options
func (p *Property) WithStaticOptions(opts ...Option) *Property {
	res := *p
	res.StaticOptions = opts
	return &res
}

// WithValidate returns a copy of an auth property with a validator
func (p *Property) WithValidate(fn AuthValidateFunc) *Property {
	res := *p
	res.Validate = fn
	return &res
}

// IsAuth reports whether the property is an authentication block
func (p *Property) IsAuth() bool {
	switch p.Type {
	case SecretText, BasicAuth, CustomAuth, OAuth2:
		return true
	default:
		return false
	}
}

// IsMulti reports whether the property holds a list of selections
func (p *Property) IsMulti() bool {
	return p.Type == StaticMultiSelect || p.Type == MultiSelect
}
