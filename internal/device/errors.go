package device

import (
	"errors"
	"fmt"
)

// Коды ошибок робота.
const (
	CodeSuccess            = 0
	CodeRobotPaused        = 21051
	CodeStepDetected       = 21052
	CodeNotDockedWithShelf = 14606
	CodeShelfOnChargeDock  = 14605
	CodeInternal           = -1
)

var errorMessages = map[int]string{
	CodeSuccess:            "Success",
	CodeRobotPaused:        "Robot paused",
	CodeStepDetected:       "Step detected",
	CodeNotDockedWithShelf: "Not docked with furniture",
	CodeShelfOnChargeDock:  "Cannot place furniture on charging dock",
	CodeInternal:           "Internal error or exception",
}

// ErrorMessage возвращает описание кода ошибки робота.
func ErrorMessage(code int) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error code: %d", code)
}

var (
	// ErrUnknownShelf — полка не найдена на карте робота.
	ErrUnknownShelf = errors.New("unknown shelf")

	// ErrUnknownLocation — точка не найдена на карте робота.
	ErrUnknownLocation = errors.New("unknown location")
)
