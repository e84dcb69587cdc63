package domain

import (
	"strings"
)

// Normalize canonicalizes a raw discriminator for the given kind so that
// equality comparisons and uniqueness checks are well defined. Domain
// names are lowercased and lose a trailing dot (DNS convention); URL
// configuration values are either a subdomain label or a "/"-prefixed
// path. Returns an InvalidDiscriminatorError when the value cannot be
// brought into canonical form.
func Normalize(kind Kind, raw string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "", &InvalidDiscriminatorError{Value: raw, Reason: "empty discriminator"}
	}

	switch kind {
	case KindCustomDomain, KindDomainMapping:
		return normalizeDomainName(raw, value)
	case KindURLConfig:
		if strings.HasPrefix(value, "/") {
			return normalizeURLPath(raw, value)
		}
		return normalizeSubdomain(raw, value)
	default:
		return "", &InvalidDiscriminatorError{Value: raw, Reason: "unknown resource kind"}
	}
}

func normalizeDomainName(raw, value string) (string, error) {
	value = strings.TrimSuffix(value, ".")
	if value == "" {
		return "", &InvalidDiscriminatorError{Value: raw, Reason: "empty domain name"}
	}
	if len(value) > 253 {
		return "", &InvalidDiscriminatorError{Value: raw, Reason: "domain name exceeds 253 characters"}
	}

	labels := strings.Split(value, ".")
	if len(labels) < 2 {
		return "", &InvalidDiscriminatorError{Value: raw, Reason: "domain name needs at least two labels"}
	}
	for _, label := range labels {
		if err := checkLabel(raw, label); err != nil {
			return "", err
		}
	}
	return value, nil
}

func normalizeSubdomain(raw, value string) (string, error) {
	if err := checkLabel(raw, value); err != nil {
		return "", err
	}
	return value, nil
}

func normalizeURLPath(raw, value string) (string, error) {
	if value != "/" {
		value = strings.TrimSuffix(value, "/")
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '/' || r == '-' || r == '_':
		default:
			return "", &InvalidDiscriminatorError{Value: raw, Reason: "url path contains invalid character"}
		}
	}
	if strings.Contains(value, "//") {
		return "", &InvalidDiscriminatorError{Value: raw, Reason: "url path contains empty segment"}
	}
	return value, nil
}

// checkLabel enforces DNS label rules: 1-63 characters, alphanumeric and
// hyphens, no hyphen at either end.
func checkLabel(raw, label string) error {
	if label == "" {
		return &InvalidDiscriminatorError{Value: raw, Reason: "empty label"}
	}
	if len(label) > 63 {
		return &InvalidDiscriminatorError{Value: raw, Reason: "label exceeds 63 characters"}
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return &InvalidDiscriminatorError{Value: raw, Reason: "label starts or ends with hyphen"}
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
		default:
			return &InvalidDiscriminatorError{Value: raw, Reason: "label contains invalid character"}
		}
	}
	return nil
}
