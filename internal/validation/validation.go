// Package validation registers the domain validation tags shared by request
// binding and the CSV importer, along with their English error messages.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/cuongbtq/alumni-core/internal/rbac"
	"github.com/cuongbtq/alumni-core/internal/registration"
)

// custom validation tags
const (
	NotBlankTag       = "notblank"
	RoleTag           = "alumni_role"
	RegistrationIDTag = "registration_id"
)

var customMessages = map[string]string{
	NotBlankTag:       "{0} cannot be blank",
	RoleTag:           "{0} is not a valid role",
	RegistrationIDTag: "{0} must look like PREFIX-YYYY-NNNNN",
}

// Translator renders validation errors in English. Every validator passed to
// Register shares it.
var Translator ut.Translator = newTranslator()

// sharedTranslator lets more than one validator (and repeated Register calls
// on gin's engine) load the same messages into one translator.
type sharedTranslator struct {
	ut.Translator
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	trans, _ := uni.GetTranslator("en")
	return sharedTranslator{trans}
}

func (t sharedTranslator) Add(key any, text string, _ bool) error {
	return t.Translator.Add(key, text, true)
}

func (t sharedTranslator) AddCardinal(key any, text string, rule locales.PluralRule, _ bool) error {
	return t.Translator.AddCardinal(key, text, rule, true)
}

func (t sharedTranslator) AddOrdinal(key any, text string, rule locales.PluralRule, _ bool) error {
	return t.Translator.AddOrdinal(key, text, rule, true)
}

func (t sharedTranslator) AddRange(key any, text string, rule locales.PluralRule, _ bool) error {
	return t.Translator.AddRange(key, text, rule, true)
}

// Register adds the custom tags and their messages to v and reports field
// names by their json or csv tag.
func Register(v *validator.Validate, ids *registration.IDFormat) error {
	v.RegisterTagNameFunc(tagName)

	if err := v.RegisterValidation(NotBlankTag, notBlank); err != nil {
		return err
	}
	if err := v.RegisterValidation(RoleTag, validRole); err != nil {
		return err
	}
	err := v.RegisterValidation(RegistrationIDTag, func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && ids.Valid(s)
	})
	if err != nil {
		return err
	}

	if err := en_translations.RegisterDefaultTranslations(v, Translator); err != nil {
		return fmt.Errorf("register default translations: %w", err)
	}
	for tag, text := range customMessages {
		if err := v.RegisterTranslation(tag, Translator, addMessage(tag, text), translate); err != nil {
			return fmt.Errorf("register %s translation: %w", tag, err)
		}
	}
	return nil
}

// New returns a validator with the custom tags registered.
func New(ids *registration.IDFormat) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := Register(v, ids); err != nil {
		panic(fmt.Sprintf("register validations: %v", err))
	}
	return v
}

func addMessage(tag, text string) validator.RegisterTranslationsFunc {
	return func(trans ut.Translator) error {
		return trans.Add(tag, text, true)
	}
}

func translate(trans ut.Translator, fe validator.FieldError) string {
	msg, err := trans.T(fe.Tag(), fe.Field())
	if err != nil {
		return fe.Error()
	}
	return msg
}

func tagName(fld reflect.StructField) string {
	for _, key := range []string{"json", "csv", "form"} {
		name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

func notBlank(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return false
}

// validRole accepts an empty role, which means the default.
func validRole(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	if strings.TrimSpace(s) == "" {
		return true
	}
	_, err := rbac.ParseRole(s)
	return err == nil
}

// Message turns a validation error into one human readable sentence.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(Translator))
	}
	return strings.Join(msgs, "; ")
}
