package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
)

var (
	validate = newValidator()

	errHalfCoordinates = apperr.Validation("latitude and longitude must be provided together")
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names so messages match what clients sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// PostDraft is the author supplied content of a new post.
type PostDraft struct {
	Title       string      `json:"title" validate:"required,max=200"`
	Description string      `json:"description" validate:"required,max=2000"`
	Location    Location    `json:"location"`
	TripDate    TripDate    `json:"tripDate"`
	Media       []MediaItem `json:"media" validate:"max=10,dive"`
	Tags        []string    `json:"tags" validate:"max=30,dive,max=50"`
	Visibility  Visibility  `json:"visibility" validate:"required,oneof=public followers private"`
	TripType    TripType    `json:"tripType" validate:"required,oneof=solo couple family friends business adventure relaxation"`
	Budget      Budget      `json:"budget" validate:"required,oneof=budget mid-range luxury"`
	Rating      int         `json:"rating" validate:"required,min=1,max=5"`
}

// Normalize trims free text, folds tags and fills defaults. It is idempotent.
func (d *PostDraft) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Location.Name = strings.TrimSpace(d.Location.Name)
	d.Location.City = strings.TrimSpace(d.Location.City)
	d.Location.Country = strings.TrimSpace(d.Location.Country)
	d.Tags = NormalizeTags(d.Tags)
	if d.Visibility == "" {
		d.Visibility = VisibilityPublic
	}
	if d.Budget == "" {
		d.Budget = BudgetMid
	}
	for i := range d.Media {
		if d.Media[i].Order == 0 {
			d.Media[i].Order = i
		}
	}
}

// Validate normalizes the draft and reports the first rule it breaks as a
// validation error.
func (d *PostDraft) Validate() error {
	d.Normalize()
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return apperr.Validation(describe(fieldErrs[0]))
	}
	return apperr.Validation("invalid post")
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "PostDraft.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be before %s", field, strings.ToLower(fe.Param()[:1])+fe.Param()[1:])
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// NewCoordinates builds a coordinate pair; both values or neither must be given.
func NewCoordinates(lat, lng *float64) (*Coordinates, error) {
	if lat == nil && lng == nil {
		return nil, nil
	}
	if lat == nil || lng == nil {
		return nil, errHalfCoordinates
	}
	return &Coordinates{Latitude: *lat, Longitude: *lng}, nil
}
