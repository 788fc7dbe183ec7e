package notify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// DefaultRegion is the region assumed for numbers written without a
// country code.
const DefaultRegion = "US"

var ErrInvalidPhone = errors.New("invalid phone number")

// Normalize parses phone and formats it as E.164 ("+12075550101").
func Normalize(phone, region string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPhone)
	}
	if region == "" {
		region = DefaultRegion
	}
	num, err := libphonenumber.Parse(phone, region)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidPhone, phone, err)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

// ValidPhone reports whether phone can be normalized.
func ValidPhone(phone, region string) bool {
	_, err := Normalize(phone, region)
	return err == nil
}
