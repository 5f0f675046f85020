package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Field names used in FieldErrors.
const (
	FieldEmail           = "email"
	FieldImage           = "images"
	FieldUsername        = "username"
	FieldPassword        = "password"
	FieldPasswordConfirm = "password_confirm"
	FieldScopes          = "scopes"
)

const (
	maxEmailLength    = 254
	maxUsernameLength = 150
	minPasswordLength = 8
)

var usernameRegex = regexp.MustCompile(`^[\pL\pN_.@+-]+$`)

// FieldErrors maps a form field to its error messages.
type FieldErrors map[string][]string

// Add appends a message for field.
func (fe FieldErrors) Add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// ValidationError reports invalid input field by field.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

func (fe FieldErrors) asError() error {
	if len(fe) == 0 {
		return nil
	}
	return &ValidationError{Fields: fe}
}

// UploadInput is an upload submission as received from the client.
// Any owner information the client sends is deliberately absent.
type UploadInput struct {
	Email    string
	Filename string
	Data     []byte
}

// ValidUpload is an upload that passed validation.
type ValidUpload struct {
	Email       string
	Filename    string
	ContentType string
	Data        []byte
}

var imageContentTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
}

// ValidateUpload checks an upload submission. It has no side effects.
// The email is optional; an empty one is later defaulted to the owner's.
func ValidateUpload(in UploadInput, maxSize int64) (*ValidUpload, FieldErrors) {
	errs := FieldErrors{}

	email, msg := normalizeEmail(in.Email)
	if msg != "" {
		errs.Add(FieldEmail, msg)
	}

	var contentType string
	switch {
	case len(in.Data) == 0:
		errs.Add(FieldImage, "This field is required.")
	case maxSize > 0 && int64(len(in.Data)) > maxSize:
		errs.Add(FieldImage, fmt.Sprintf("Image must be at most %d bytes.", maxSize))
	default:
		_, format, err := image.DecodeConfig(bytes.NewReader(in.Data))
		ct, ok := imageContentTypes[format]
		if err != nil || !ok {
			errs.Add(FieldImage, "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
		}
		contentType = ct
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return &ValidUpload{
		Email:       email,
		Filename:    in.Filename,
		ContentType: contentType,
		Data:        in.Data,
	}, nil
}

// normalizeEmail trims raw and checks it is a single bare address.
// An empty input is valid. A non-empty message means the input is invalid.
func normalizeEmail(raw string) (string, string) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", ""
	}
	if len(email) > maxEmailLength {
		return "", fmt.Sprintf("Ensure this value has at most %d characters.", maxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", "Enter a valid email address."
	}
	return email, ""
}

// RegisterInput is a registration form submission.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	PasswordConfirm string
}

// ValidateRegistration checks a registration submission. It has no side
// effects; username uniqueness is checked by the store.
func ValidateRegistration(in RegisterInput) FieldErrors {
	errs := FieldErrors{}

	switch {
	case in.Username == "":
		errs.Add(FieldUsername, "This field is required.")
	case len([]rune(in.Username)) > maxUsernameLength:
		errs.Add(FieldUsername, fmt.Sprintf("Ensure this value has at most %d characters.", maxUsernameLength))
	case !usernameRegex.MatchString(in.Username):
		errs.Add(FieldUsername, "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	}

	if _, msg := normalizeEmail(in.Email); msg != "" {
		errs.Add(FieldEmail, msg)
	}

	switch {
	case in.Password == "":
		errs.Add(FieldPassword, "This field is required.")
	default:
		if len([]rune(in.Password)) < minPasswordLength {
			errs.Add(FieldPassword, fmt.Sprintf("This password is too short. It must contain at least %d characters.", minPasswordLength))
		}
		if isAllDigits(in.Password) {
			errs.Add(FieldPassword, "This password is entirely numeric.")
		}
		if in.Username != "" && strings.EqualFold(in.Password, in.Username) {
			errs.Add(FieldPassword, "The password is too similar to the username.")
		}
	}

	if in.Password != in.PasswordConfirm {
		errs.Add(FieldPasswordConfirm, "The two password fields didn't match.")
	}

	return errs
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
