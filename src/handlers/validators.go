package handlers

import (
	"fmt"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the custom binding tags used by request structs.
// Safe to call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
			return
		}
		err = v.RegisterValidation("fingerprint", validateFingerprint)
	})
	return err
}

// validateFingerprint accepts printable text without control characters
func validateFingerprint(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	for _, r := range value {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
