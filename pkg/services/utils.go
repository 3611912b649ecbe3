package services

import (
	"time"

	"github.com/sirupsen/logrus"
)

// retry runs fn up to maxAttempts times with a fixed delay between attempts
// and returns the last error when every attempt fails.
func retry(what string, maxAttempts int, delay time.Duration, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		logrus.Warnf("%s failed (attempt %d/%d): %v", what, attempt, maxAttempts, err)
		if attempt < maxAttempts {
			time.Sleep(delay)
		}
	}
	return err
}
