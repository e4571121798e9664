package deploy

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/homedock/internal/model"
)

var validate = validator.New()

var appIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

func init() {
	validate.RegisterValidation("appid", func(fl validator.FieldLevel) bool {
		return appIDRegex.MatchString(fl.Field().String())
	})
	validate.RegisterValidation("port", func(fl validator.FieldLevel) bool {
		return validPort(fl.Field().String())
	})
}

type deployInput struct {
	AppID string      `validate:"required,appid"`
	Ports []portInput `validate:"dive"`
}

type portInput struct {
	Container string `validate:"required,port"`
	Published string `validate:"omitempty,port"`
}

// ValidAppID reports whether id may name an app.
func ValidAppID(id string) bool {
	return appIDRegex.MatchString(id)
}

// validPort accepts "1".."65535" with an optional /tcp or /udp suffix.
func validPort(s string) bool {
	port, proto, hasProto := strings.Cut(s, "/")
	if hasProto && proto != "tcp" && proto != "udp" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

func validateRequest(req model.DeployRequest) error {
	in := deployInput{AppID: req.AppID}
	if req.Config != nil {
		for _, p := range req.Config.Ports {
			in.Ports = append(in.Ports, portInput(p))
		}
	}

	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "appid":
		return fmt.Errorf("invalid app ID %q: use letters, digits, '.', '_' or '-'", fe.Value())
	case "port":
		return fmt.Errorf("invalid port %q: must be between 1 and 65535", fe.Value())
	case "required":
		if fe.Field() == "AppID" {
			return fmt.Errorf("app ID is required")
		}
		return fmt.Errorf("port mapping is missing its container port")
	}
	return fmt.Errorf("invalid request: %s", fe.Error())
}
