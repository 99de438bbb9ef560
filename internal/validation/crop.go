package validation

import (
	"errors"
	"unicode"

	"github.com/kjstillabower/crop-advisory-service/internal/crops"
)

// MaxCropKeyLen bounds crop keys accepted from requests.
const MaxCropKeyLen = 32

// ErrCropInvalid is returned for crop keys that are too long or contain
// anything other than letters, digits, hyphen, underscore.
var ErrCropInvalid = errors.New("crop contains invalid characters")

// ValidateCropKey normalizes a crop key. An empty key returns defaultKey.
// Unknown but well-formed keys are accepted; the engine resolves them to the
// fallback profile.
func ValidateCropKey(input, defaultKey string) (string, error) {
	key := crops.NormalizeKey(input)
	if key == "" {
		return crops.NormalizeKey(defaultKey), nil
	}
	if len(key) > MaxCropKeyLen {
		return "", ErrCropInvalid
	}
	for _, r := range key {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			continue
		}
		return "", ErrCropInvalid
	}
	return key, nil
}
