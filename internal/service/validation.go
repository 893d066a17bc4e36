package service

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

var (
	pincodePattern = regexp.MustCompile(`^[A-Za-z0-9]{4,10}$`)
	addressPolicy  = bluemonday.StrictPolicy()
)

const addressField = "shippingAddress"

// ValidateShippingAddress checks a complete address and returns it trimmed and
// stripped of markup.
func ValidateShippingAddress(addr *models.Address) (models.Address, error) {
	if addr == nil {
		return models.Address{}, errors.NewValidationError(addressField, "shipping address is required")
	}

	out := *addr
	fields := []struct {
		name  string
		value *string
	}{
		{"street", &out.Street},
		{"city", &out.City},
		{"state", &out.State},
		{"pincode", &out.Pincode},
		{"country", &out.Country},
	}
	for _, f := range fields {
		*f.value = sanitize(*f.value)
		if *f.value == "" {
			return models.Address{}, errors.NewValidationError(addressField+"."+f.name, f.name+" is required")
		}
	}

	if !pincodePattern.MatchString(out.Pincode) {
		return models.Address{}, errors.NewValidationError(addressField+".pincode", "pincode must be 4-10 letters or digits")
	}
	return out, nil
}

// ValidateAddressPatch checks a partial address. Every present field must be
// non-empty after sanitising; at least one field must be present.
func ValidateAddressPatch(patch *models.AddressPatch) (models.AddressPatch, error) {
	if patch == nil || patch.Empty() {
		return models.AddressPatch{}, errors.NewValidationError(addressField, "at least one address field is required")
	}

	out := models.AddressPatch{}
	fields := []struct {
		name string
		in   *string
		out  **string
	}{
		{"street", patch.Street, &out.Street},
		{"city", patch.City, &out.City},
		{"state", patch.State, &out.State},
		{"pincode", patch.Pincode, &out.Pincode},
		{"country", patch.Country, &out.Country},
	}
	for _, f := range fields {
		if f.in == nil {
			continue
		}
		v := sanitize(*f.in)
		if v == "" {
			return models.AddressPatch{}, errors.NewValidationError(addressField+"."+f.name, f.name+" cannot be empty")
		}
		*f.out = &v
	}

	if out.Pincode != nil && !pincodePattern.MatchString(*out.Pincode) {
		return models.AddressPatch{}, errors.NewValidationError(addressField+".pincode", "pincode must be 4-10 letters or digits")
	}
	return out, nil
}

// sanitize strips markup; the policy escapes entities, which are decoded back
// so values like "O'Brien Lane" survive unchanged.
func sanitize(v string) string {
	return strings.TrimSpace(html.UnescapeString(addressPolicy.Sanitize(v)))
}

// ParsePagination reads page and limit query values. Anything that is not a
// positive integer falls back to the configured default; limit is capped.
func ParsePagination(pageStr, limitStr string, cfg config.PaginationConfig) (page, limit int) {
	page = positiveOr(pageStr, cfg.DefaultPage)
	limit = positiveOr(limitStr, cfg.DefaultLimit)
	if cfg.MaxLimit > 0 && limit > cfg.MaxLimit {
		limit = cfg.MaxLimit
	}
	return page, limit
}

func positiveOr(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
