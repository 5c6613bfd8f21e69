package queue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

var validate = validator.New()

// normalize validates req and resolves its stage.
func normalize(req SubmitRequest) (SubmitRequest, stage.Stage, error) {
	req.VideoID = strings.TrimSpace(req.VideoID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.Stage = strings.TrimSpace(req.Stage)

	if err := validate.Struct(req); err != nil {
		return req, "", services.Wrap(services.ErrValidation, "", "submit", describeValidation(err), nil)
	}
	if req.Stage == "" {
		return req, stage.ExtractAudio, nil
	}
	st, err := stage.Parse(req.Stage)
	if err != nil {
		return req, "", err
	}
	return req, st, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
