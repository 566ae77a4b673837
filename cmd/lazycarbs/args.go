package main

import (
	"errors"
	"fmt"
	"strconv"

	"lazycarbs-console/internal/apperr"
)

var errInvalidArgument = errors.New("invalid argument")

func parseHour(raw string) (int, error) {
	hour, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("hour %q: %w", raw, apperr.ErrInvalidKey)
	}
	return hour, nil
}
