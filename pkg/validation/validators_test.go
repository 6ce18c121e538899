package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type profileForm struct {
	Name   string `validate:"omitempty,max=100,valid_name,no_emoji"`
	Email  string `validate:"required,email"`
	Avatar string `validate:"avatar_url"`
}

func TestValidators(t *testing.T) {
	v := New()

	t.Run("Should accept Urdu names and OAuth avatars", func(t *testing.T) {
		err := v.Struct(profileForm{
			Name:   "عائشہ خان",
			Email:  "aisha@example.com",
			Avatar: "https://lh3.googleusercontent.com/a/abc=s96-c",
		})
		assert.NoError(t, err)
	})

	t.Run("Should reject emoji and bad avatar scheme", func(t *testing.T) {
		err := v.Struct(profileForm{
			Name:   "Ali 🚀",
			Email:  "ali@example.com",
			Avatar: "javascript:alert(1)",
		})
		msgs := FormatValidationErrors(err)
		assert.Len(t, msgs, 2)
		assert.Contains(t, msgs[1], "Avatar URL must be an http(s) URL")
	})

	t.Run("Should label missing email", func(t *testing.T) {
		err := v.Struct(profileForm{})
		assert.Equal(t, []string{"Email is required"}, FormatValidationErrors(err))
	})
}
