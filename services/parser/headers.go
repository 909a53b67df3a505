package parser

import (
	"mime"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"

	"github.com/asergian/beacon-sub001/internal/models"
)

// headerSet holds header values under canonical MIME keys.
type headerSet map[string][]string

func headerSetFromMap(headers map[string]string) headerSet {
	set := make(headerSet, len(headers))
	for key, value := range headers {
		canonical := textproto.CanonicalMIMEHeaderKey(key)
		set[canonical] = append(set[canonical], value)
	}
	return set
}

func (h headerSet) get(key string) string {
	values := h[textproto.CanonicalMIMEHeaderKey(key)]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (h headerSet) has(key string) bool {
	_, ok := h[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}

var (
	wordDecoder   = &mime.WordDecoder{CharsetReader: charsetReader}
	addressParser = &mail.AddressParser{WordDecoder: wordDecoder}
	looseAddress  = regexp.MustCompile(`[^\s<>"',;]+@[^\s<>"',;]+`)
)

// decodeHeader expands RFC 2047 encoded words. Undecodable input is returned as is.
func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

func parseAddress(value string) models.Address {
	list := parseAddressList(value)
	if len(list) == 0 {
		return models.Address{}
	}
	return list[0]
}

// parseAddressList accepts well-formed lists and falls back to picking out anything that looks like an
// address.
func parseAddressList(value string) []models.Address {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if parsed, err := addressParser.ParseList(value); err == nil {
		out := make([]models.Address, 0, len(parsed))
		for _, addr := range parsed {
			out = append(out, models.Address{Name: strings.TrimSpace(addr.Name), Address: normalizeAddress(addr.Address)})
		}
		return out
	}

	var out []models.Address
	for _, part := range strings.Split(value, ",") {
		if addr, err := addressParser.Parse(part); err == nil {
			out = append(out, models.Address{Name: strings.TrimSpace(addr.Name), Address: normalizeAddress(addr.Address)})
			continue
		}
		if match := looseAddress.FindString(part); match != "" {
			name := strings.TrimSpace(strings.Trim(strings.Replace(part, match, "", 1), ` <>"`))
			out = append(out, models.Address{Name: decodeHeader(name), Address: normalizeAddress(match)})
		}
	}
	return out
}

func normalizeAddress(address string) string {
	validation := mailvalidate.ValidateEmailSyntax(address)
	if validation.IsValid && validation.CleanEmail != "" {
		return validation.CleanEmail
	}
	return strings.ToLower(strings.TrimSpace(address))
}
