package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"chatbridge/internal/constants"
	"chatbridge/internal/errors"
)

// ValidateConversationName validates a conversation name as it appears in
// the config and in the chat surface sidebar
func ValidateConversationName(name string) error {
	if name == "" {
		return errors.New(errors.ErrCodeInvalidInput, "conversation name cannot be empty")
	}

	if utf8.RuneCountInString(name) > constants.MaxConversationNameLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("conversation name too long (max %d characters)", constants.MaxConversationNameLength))
	}

	for _, char := range name {
		if unicode.IsControl(char) {
			return errors.New(errors.ErrCodeInvalidInput, "conversation name contains control characters")
		}
	}

	return nil
}

// ValidateProviderID validates a provider identifier used as a config map key
func ValidateProviderID(id string) error {
	if id == "" {
		return errors.New(errors.ErrCodeInvalidInput, "provider id cannot be empty")
	}

	if len(id) > constants.MaxProviderIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("provider id too long (max %d characters)", constants.MaxProviderIDLength))
	}

	for _, char := range id {
		if !unicode.IsLower(char) && !unicode.IsDigit(char) && char != '_' && char != '-' {
			return errors.New(errors.ErrCodeInvalidInput,
				"provider id must contain only lowercase letters, numbers, underscores, and dashes")
		}
	}

	return nil
}

// ValidateTemplate validates a prompt template and requires the message
// placeholder so rendered prompts always carry the message text
func ValidateTemplate(template, fieldName string) error {
	if template == "" {
		return nil
	}

	if len(template) > constants.MaxTemplateLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too long (max %d characters)", fieldName, constants.MaxTemplateLength))
	}

	if !strings.Contains(template, "{message}") {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must contain the {message} placeholder", fieldName))
	}

	return nil
}

// ValidateImageSize validates an image file size against the configured limit
func ValidateImageSize(sizeBytes int64, maxKB int) error {
	if sizeBytes < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "image size cannot be negative")
	}

	if sizeBytes == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "image file is empty")
	}

	maxBytes := int64(maxKB) * 1024
	if sizeBytes > maxBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("image file too large: %d bytes (max %d KB)", sizeBytes, maxKB))
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be at least 1 second", fieldName))
	}

	if timeoutSec > constants.MaxTimeoutSec {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d seconds)", fieldName, constants.MaxTimeoutSec))
	}

	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}

	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}

	return nil
}

// ValidateRetentionDays validates a data retention period
func ValidateRetentionDays(days int) error {
	if days < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "retention days must be at least 1")
	}

	if days > constants.MaxRetentionDays {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("retention days too large (max %d)", constants.MaxRetentionDays))
	}

	return nil
}

// TruncateRunes clamps a string to at most max runes, keeping the head.
// Prompts that exceed the provider budget are clipped rather than rejected.
func TruncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}

	runes := []rune(s)
	return string(runes[:max])
}
