// Package masking redacts customer contact and account identifiers for
// storage and display. Masking is lossy; there is no way back to the input.
package masking

import "strings"

const (
	emailVisiblePrefix = 2
	visibleSuffix      = 4
	emailMask          = "***"
	phoneMask          = "******"
	accountMask        = "XXXX-XXXX-"
)

// MaskEmail keeps the first two characters of the local part and the whole
// domain: "johndoe@example.com" becomes "jo***@example.com". Input without an
// "@" is returned unchanged.
func MaskEmail(email string) string {
	local, domainPart, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	runes := []rune(local)
	visible := min(emailVisiblePrefix, len(runes))
	return string(runes[:visible]) + emailMask + "@" + domainPart
}

// MaskPhone keeps the last four digits. Inputs shorter than four characters
// are returned unchanged.
func MaskPhone(phone string) string {
	return maskSuffix(phone, phoneMask)
}

// MaskAccountNumber keeps the last four characters behind a fixed prefix.
func MaskAccountNumber(accountNumber string) string {
	return maskSuffix(accountNumber, accountMask)
}

func maskSuffix(value string, prefix string) string {
	runes := []rune(value)
	if len(runes) < visibleSuffix {
		return value
	}
	return prefix + string(runes[len(runes)-visibleSuffix:])
}
