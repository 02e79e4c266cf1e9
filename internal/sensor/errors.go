package sensor

import "errors"

var (
	// ErrUnavailable — клиент сенсора не настроен.
	ErrUnavailable = errors.New("bio-sensor client is not available")

	// ErrNoValidData — валидное измерение не получено.
	ErrNoValidData = errors.New("no valid data obtained after all retries")
)
