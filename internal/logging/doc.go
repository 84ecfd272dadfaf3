// Package logging provides leveled logging for the media catalog.
//
// The level is taken from the DEBUG and LOG_LEVEL environment variables at
// startup and can be overridden programmatically with SetLevel.
package logging
