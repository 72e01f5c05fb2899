package dto

import (
	"errors"
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"

	"eventhive/internal/apperr"
	"eventhive/internal/category"
	"eventhive/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."
)

type StoreUserRequest struct {
	Name string `json:"name" validate:"omitempty,max=255"`
}

type OnboardingRequest struct {
	Location  LocationRequest `json:"location"`
	Interests []string        `json:"interests" validate:"required,min=1,max=12,dive,category"`
}

type LocationRequest struct {
	City    string `json:"city" validate:"required,max=120"`
	State   string `json:"state" validate:"max=120"`
	Country string `json:"country" validate:"required,max=120"`
}

type CreateEventRequest struct {
	Title        string             `json:"title" validate:"required,min=3,max=255,singleline"`
	Description  string             `json:"description" validate:"max=5000"`
	Category     string             `json:"category" validate:"required,category"`
	Tags         []string           `json:"tags" validate:"max=10,dive,max=40"`
	StartDate    time.Time          `json:"start_date" validate:"required,future"`
	EndDate      time.Time          `json:"end_date" validate:"required,gtefield=StartDate"`
	Timezone     string             `json:"timezone" validate:"max=64"`
	LocationType model.LocationType `json:"location_type" validate:"omitempty,oneof=physical online"`
	Venue        string             `json:"venue" validate:"max=255"`
	Address      string             `json:"address" validate:"max=255"`
	City         string             `json:"city" validate:"required,max=120"`
	State        string             `json:"state" validate:"max=120"`
	Country      string             `json:"country" validate:"required,max=120"`
	Capacity     int                `json:"capacity" validate:"positive"`
	TicketType   model.TicketType   `json:"ticket_type" validate:"omitempty,oneof=free paid"`
	TicketPrice  *float64           `json:"ticket_price" validate:"omitempty,gt=0"`
	CoverImage   string             `json:"cover_image" validate:"omitempty,url"`
	ThemeColor   string             `json:"theme_color" validate:"omitempty,hexcolor6"`
}

type CreateRegistrationRequest struct {
	AttendeeName  string `json:"attendee_name" validate:"omitempty,min=2,max=255"`
	AttendeeEmail string `json:"attendee_email" validate:"omitempty,email"`
}

type CreateEventResponse struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
}

type CategoryPageResponse struct {
	Category category.Category `json:"category"`
	Count    int               `json:"count"`
	Events   []model.Event     `json:"events"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func ErrorResponse(c *ginext.Context, status int, code, desc string) {
	c.JSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	ErrorResponse(c, http.StatusBadRequest, code, desc)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func UnauthorizedError(c *ginext.Context) {
	ErrorResponse(c, http.StatusUnauthorized, string(apperr.KindUnauthorized), "Authentication required")
}

// StatusOf maps an error kind to its HTTP status. Unknown kinds are 500.
func StatusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindQuotaExceeded, apperr.KindFeatureGated:
		return http.StatusPaymentRequired
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AppError writes err using its kind and message. It reports false for
// errors without a kind so the caller can log them before answering 500.
func AppError(c *ginext.Context, err error) bool {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind == apperr.KindUnknown {
		InternalServerError(c)
		return false
	}
	ErrorResponse(c, StatusOf(e.Kind), string(e.Kind), e.Message)
	return true
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}
