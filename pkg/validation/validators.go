package validation

import (
	"net/url"
	"regexp"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Letters (any script, so Urdu names pass), digits, spaces and common punctuation
var nameRegex = regexp.MustCompile(`^[\p{L}\p{M}0-9 .'_-]+$`)

// New returns a validator with the custom profile rules registered.
func New() *validator.Validate {
	v := validator.New()
	RegisterValidators(v)
	return v
}

// RegisterValidators registers custom validators to the validator instance
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("valid_name", ValidName)
	_ = v.RegisterValidation("no_emoji", NoEmoji)
	_ = v.RegisterValidation("avatar_url", AvatarURL)
}

// ValidName validates that a string contains only valid name characters
func ValidName(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true // Optional, use required if needed
	}
	return nameRegex.MatchString(val)
}

// NoEmoji rejects supplementary-plane runes and symbol categories
func NoEmoji(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if r > 0x1F000 {
			return false
		}
		if unicode.In(r, unicode.So, unicode.Sk) {
			return false
		}
	}
	return true
}

// AvatarURL accepts an empty value or an absolute http(s) URL. OAuth providers
// hand out avatar URLs with long query strings, so only the shape is checked.
func AvatarURL(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	u, err := url.Parse(val)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
