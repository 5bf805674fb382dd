package services

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// TrackTime logs how long op took at debug level. Use as: defer TrackTime("op", time.Now())
func TrackTime(op string, start time.Time) {
	log.WithFields(log.Fields{
		"op":      op,
		"took_ms": time.Since(start).Milliseconds(),
	}).Debug("Timing")
}
